package conversation

import (
	"regexp"
	"strings"
)

// Chart labels come back from the backend in English. Spanish follow-ups
// are mapped onto the usual status and priority words before matching.

var spanishPhrases = []struct {
	pattern *regexp.Regexp
	english string
}{
	{regexp.MustCompile(`\bno iniciad[oa]s?\b`), "not started"},
	{regexp.MustCompile(`\ben (?:progreso|curso)\b`), "in progress"},
	{regexp.MustCompile(`\ben espera\b`), "on hold"},
	{regexp.MustCompile(`\bsin valor\b`), "(no value)"},
}

// spanishStems maps an adjective stem to its English label word. The stem
// takes the -o, -a, -os and -as endings.
var spanishStems = map[string]string{
	"activ":     "active",
	"inactiv":   "inactive",
	"completad": "completed",
	"terminad":  "completed",
	"finalizad": "completed",
	"cancelad":  "cancelled",
	"abiert":    "open",
	"cerrad":    "closed",
	"aprobad":   "approved",
	"rechazad":  "rejected",
	"propuest":  "proposed",
	"nuev":      "new",
	"alt":       "high",
	"medi":      "medium",
	"baj":       "low",
}

var spanishWords = map[string]string{
	"pendiente":  "pending",
	"pendientes": "pending",
	"borrador":   "draft",
	"borradores": "draft",
}

// NormalizeValue rewrites Spanish label words in text into their English
// form. Other words are kept, lowercased.
func NormalizeValue(text string) string {
	out := strings.ToLower(strings.TrimSpace(text))
	for _, p := range spanishPhrases {
		out = p.pattern.ReplaceAllString(out, p.english)
	}

	fields := strings.Fields(out)
	for i, f := range fields {
		word := strings.Trim(f, "¿?¡!.,;:")
		if en, ok := spanishWords[word]; ok {
			fields[i] = en
			continue
		}
		for _, suffix := range []string{"os", "as", "o", "a"} {
			stem, found := strings.CutSuffix(word, suffix)
			if !found {
				continue
			}
			if en, ok := spanishStems[stem]; ok {
				fields[i] = en
				break
			}
		}
	}
	return strings.Join(fields, " ")
}
