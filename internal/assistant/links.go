package assistant

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/ahmetk3436/ppmchat/internal/conversation"
	"github.com/ahmetk3436/ppmchat/internal/deeplink"
	"github.com/ahmetk3436/ppmchat/internal/ppm"
	"github.com/ahmetk3436/ppmchat/internal/schema"
)

// maxCustomLinks caps the custom object links listed in one reply.
const maxCustomLinks = 5

// linkRecordType is the object type searched when a link names a record.
const linkRecordType = "projects"

var (
	linkTarget   = regexp.MustCompile(`(?i)\b(?:link|links|url|enlace|v[ií]nculo)s?\s+(?:to|for|of|a|al|de|del|para)\s+(.+?)[\s?.!]*$`)
	customObject = regexp.MustCompile(`\bcustom[\s_-]?objects?\b|\bobjetos? personalizados?\b`)
	allPrefix    = regexp.MustCompile(`^(?:all|todos|todas)\b(?:\s+(?:the|of the|los|las))?\s*`)
	leadArticle  = regexp.MustCompile(`(?i)^(?:the|a|an|el|la|los|las)\s+`)
	leadProject  = regexp.MustCompile(`(?i)^(?:project|proyecto)\s+`)
	trailProject = regexp.MustCompile(`(?i)\s+(?:project|proyecto)$`)
)

// pronouns never name a record.
var pronouns = map[string]bool{
	"it": true, "this": true, "that": true, "these": true, "those": true, "them": true,
	"here": true, "there": true, "me": true, "this one": true, "that one": true,
	"these ones": true, "those ones": true, "ellos": true, "ellas": true, "esto": true, "eso": true,
}

// resolveLink answers link requests. It tries, in order: a list link for
// "all ..." or a standard object, links to custom objects, a named custom
// object or project record, and finally the last query of the session.
func (a *Assistant) resolveLink(ctx context.Context, message string, st conversation.State) Response {
	text := strings.Join(strings.Fields(message), " ")
	lower := strings.ToLower(text)

	// target keeps its case so record codes survive.
	target := ""
	if m := linkTarget.FindStringSubmatch(text); m != nil {
		target = strings.TrimSpace(m[1])
	}
	lowTarget := strings.ToLower(target)

	if target != "" {
		if loc := allPrefix.FindStringIndex(lowTarget); loc != nil || standardObject(lowTarget) != "" {
			rest := lowTarget
			if loc != nil {
				rest = strings.TrimSpace(lowTarget[loc[1]:])
			}
			name := standardObject(rest)
			if rest == "" {
				name = schema.StandardObjects[0]
				if st.LastQuery != nil {
					name = st.LastQuery.ObjectType
				}
			}
			if name != "" {
				return a.linkResponse(name, fmt.Sprintf("Here is the link to all %s", name), a.links.List(name, a.schemas.IsCustom(name)))
			}
		}
	}

	if customObject.MatchString(lower) {
		return a.customObjectLinks(ctx)
	}

	if target != "" {
		name := leadArticle.ReplaceAllString(target, "")
		name = leadProject.ReplaceAllString(name, "")
		name = strings.TrimSpace(trailProject.ReplaceAllString(name, ""))
		if name != "" && !pronouns[strings.ToLower(name)] {
			return a.namedLink(ctx, name)
		}
	}

	if q := st.LastQuery; q != nil {
		if len(q.Filters) > 0 {
			return a.linkResponse(q.ObjectType,
				fmt.Sprintf("Here is the link to the %s matching %s", a.noun(q), filterText(q.Filters)),
				a.links.Filtered(q.ObjectType, q.Filters))
		}
		return a.linkResponse(q.ObjectType,
			fmt.Sprintf("Here is the link to all %s", a.noun(q)),
			a.links.List(q.ObjectType, a.schemas.IsCustom(q.ObjectType)))
	}

	return Response{
		Success: false,
		Reply: "I need to know what to link to. Try one of these:\n" +
			"• \"link to all projects\"\n" +
			"• \"link to project PRJ-0042\"\n" +
			"• \"link to custom objects\"\n" +
			"Or ask a question first and then say \"give me a link\".",
		Action:      "link",
		Suggestions: defaultAlternatives(),
	}
}

// standardObject maps "projects" or "project" to a standard object type.
func standardObject(text string) string {
	text = strings.TrimSpace(text)
	for _, name := range schema.StandardObjects {
		if text == name || text == strings.TrimSuffix(name, "s") {
			return name
		}
	}
	return ""
}

func (a *Assistant) customObjectLinks(ctx context.Context) Response {
	a.schemas.DiscoverObjectTypes(ctx, false)
	custom := a.schemas.CustomObjects()
	if len(custom) == 0 {
		return Response{
			Success:     false,
			Reply:       "I couldn't find any custom objects in this PPM instance.",
			Action:      "link",
			Suggestions: defaultAlternatives(),
		}
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("Found %d custom objects:\n", len(custom)))
	links := make([]deeplink.Link, 0, maxCustomLinks)
	for i, t := range custom {
		if i == maxCustomLinks {
			sb.WriteString(fmt.Sprintf("+%d more\n", len(custom)-maxCustomLinks))
			break
		}
		l := deeplink.Link{Label: t.Label, URL: a.links.List(t.Name, true)}
		links = append(links, l)
		sb.WriteString(fmt.Sprintf("• %s: %s\n", l.Label, l.URL))
	}
	return Response{
		Success:  true,
		Reply:    strings.TrimRight(sb.String(), "\n"),
		Action:   "link",
		DeepLink: links[0].URL,
		Links:    links,
	}
}

// namedLink links to a custom object by label or name, otherwise to the
// project whose code or name matches.
func (a *Assistant) namedLink(ctx context.Context, name string) Response {
	a.schemas.DiscoverObjectTypes(ctx, false)
	for _, t := range a.schemas.CustomObjects() {
		if strings.EqualFold(t.Label, name) || strings.EqualFold(t.Name, name) || strings.EqualFold(t.PluralLabel, name) {
			return a.linkResponse(t.Name, fmt.Sprintf("Here is the link to %s", t.Label), a.links.List(t.Name, true))
		}
	}

	rec, err := a.exec.FindRecord(ctx, linkRecordType, name)
	if err != nil {
		r := a.failure(err, linkRecordType)
		r.Action = "link"
		return r
	}

	title := ppm.FormatValue(rec["name"])
	if title == "" {
		title = name
	}
	return a.linkResponse(linkRecordType, fmt.Sprintf("Here is the link to %s", title),
		a.links.Record(linkRecordType, ppm.FormatValue(rec[ppm.IdentityField])))
}

func (a *Assistant) linkResponse(objectType, text, url string) Response {
	return Response{
		Success:    true,
		Reply:      fmt.Sprintf("%s: %s", text, url),
		Action:     "link",
		ObjectType: objectType,
		DeepLink:   url,
		Links:      []deeplink.Link{{Label: text, URL: url}},
	}
}
