// Package intent recognizes follow-up requests with a fixed, ordered pattern
// table. It never calls out to the reasoning service.
package intent

import (
	_ "embed"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

//go:embed intents.yaml
var defaultIntentsYAML []byte

type Type string

const (
	None         Type = ""
	ShowSelected Type = "showSelected"
	Export       Type = "export"
	Count        Type = "count"
	Details      Type = "details"
	Filter       Type = "filter"
	Link         Type = "link"
)

var knownTypes = map[Type]bool{
	ShowSelected: true, Export: true, Count: true, Details: true, Filter: true, Link: true,
}

// Result is the outcome of Classify. Value holds the captured text, if any.
type Result struct {
	Type  Type   `json:"type"`
	Value string `json:"value,omitempty"`
}

// Matched reports whether any intent was recognized.
func (r Result) Matched() bool { return r.Type != None }

// IsDrillDown reports whether the intent narrows a previous distribution.
func (r Result) IsDrillDown() bool {
	return r.Type == ShowSelected || r.Type == Details || r.Type == Filter
}

type rule struct {
	intent  Type
	pattern *regexp.Regexp
}

// Classifier matches messages against an ordered rule table. Immutable after
// construction and safe for concurrent use.
type Classifier struct {
	rules []rule
}

type tableFile struct {
	Intents []struct {
		Type     string   `yaml:"type"`
		Patterns []string `yaml:"patterns"`
	} `yaml:"intents"`
}

// Parse builds a Classifier from a YAML rule table.
func Parse(data []byte) (*Classifier, error) {
	var table tableFile
	if err := yaml.Unmarshal(data, &table); err != nil {
		return nil, fmt.Errorf("parse intent table: %w", err)
	}

	c := &Classifier{}
	for _, in := range table.Intents {
		t := Type(in.Type)
		if !knownTypes[t] {
			return nil, fmt.Errorf("unknown intent type %q", in.Type)
		}
		for _, p := range in.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("intent %s: compile %q: %w", t, p, err)
			}
			c.rules = append(c.rules, rule{intent: t, pattern: re})
		}
	}
	if len(c.rules) == 0 {
		return nil, fmt.Errorf("intent table has no patterns")
	}
	return c, nil
}

var (
	defaultClassifier *Classifier
	defaultOnce       sync.Once
)

// Default returns the classifier built from the embedded table.
func Default() *Classifier {
	defaultOnce.Do(func() {
		c, err := Parse(defaultIntentsYAML)
		if err != nil {
			panic(fmt.Sprintf("embedded intents.yaml: %v", err))
		}
		defaultClassifier = c
		slog.Debug("Intent table loaded", "rules", len(c.rules))
	})
	return defaultClassifier
}

// Classify returns the first matching intent for message.
func (c *Classifier) Classify(message string) Result {
	text := normalize(message)
	if text == "" {
		return Result{}
	}
	for _, r := range c.rules {
		m := r.pattern.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		return Result{Type: r.intent, Value: lastGroup(m)}
	}
	return Result{}
}

// Classify uses the default table.
func Classify(message string) Result {
	return Default().Classify(message)
}

var (
	linkWord   = regexp.MustCompile(`\b(?:link|links|url|enlace|v[ií]nculo)\b`)
	createWord = regexp.MustCompile(`\b(?:create|new|crear|nuevo|nueva)\b`)
)

// IsLinkRequest reports whether message asks for a deep link rather than for
// creating something.
func IsLinkRequest(message string) bool {
	text := normalize(message)
	return linkWord.MatchString(text) && !createWord.MatchString(text)
}

func normalize(message string) string {
	return strings.Join(strings.Fields(strings.ToLower(message)), " ")
}

func lastGroup(m []string) string {
	for i := len(m) - 1; i >= 1; i-- {
		v := strings.Trim(strings.TrimSpace(m[i]), "?.!¿¡\"'")
		if v != "" {
			return v
		}
	}
	return ""
}
