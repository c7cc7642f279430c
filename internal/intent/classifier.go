// Package intent maps free-form message text to an intent label and a
// confidence score.
//
// The Classifier interface is the contract the rest of the application
// depends on. KeywordClassifier is the bundled implementation: a fixed
// priority scan over a Catalog's keywords.
//
// Matching rules:
//   - Text is lowercased and split into Unicode letter/number tokens.
//   - Single-word keywords match whole tokens ("hi" does not match "this").
//   - Multi-word keywords ("thank you") match as a contiguous token phrase.
//   - A literal "?" anywhere in the text counts as a hit for the question label.
//   - The first label in priority order with at least one hit wins;
//     otherwise the fallback label is returned.
//
// Confidence is 0.85 + 0.14*min(1, hits/3), so it always lies in [0.85, 0.99]
// and grows with the number of distinct keywords matched.
package intent

import (
	"regexp"
	"strings"
)

// Result is a classification outcome.
type Result struct {
	Label      string  `json:"intent"`
	Confidence float64 `json:"confidence"`
}

// Classifier labels text. Implementations must be safe for concurrent use
// and must return a confidence in [0,1].
type Classifier interface {
	Classify(text string) Result
}

const (
	baseConfidence = 0.85
	confidenceSpan = 0.14
	saturatingHits = 3
)

// Option configures a KeywordClassifier.
type Option func(*config)

type config struct {
	priority []string
	fallback string
}

func defaultConfig() config {
	return config{
		priority: []string{Greeting, Question, Request, Feedback},
		fallback: Help,
	}
}

// WithPriority overrides the scan order. Labels missing from the catalog are skipped.
func WithPriority(labels ...string) Option {
	return func(c *config) {
		if len(labels) > 0 {
			c.priority = append([]string(nil), labels...)
		}
	}
}

// WithFallback sets the label returned when nothing matches.
func WithFallback(label string) Option {
	return func(c *config) {
		if label = strings.TrimSpace(label); label != "" {
			c.fallback = label
		}
	}
}

type rule struct {
	label   string
	words   map[string]struct{}
	phrases []string
	mark    bool // "?" counts
}

// KeywordClassifier is immutable after construction.
type KeywordClassifier struct {
	rules    []rule
	fallback rule
}

var _ Classifier = (*KeywordClassifier)(nil)

// NewKeywordClassifier compiles cat into a classifier.
func NewKeywordClassifier(cat Catalog, opts ...Option) *KeywordClassifier {
	cfg := defaultConfig()
	for _, o := range opts {
		o(&cfg)
	}

	k := &KeywordClassifier{fallback: rule{label: cfg.fallback}}
	for _, label := range cfg.priority {
		e, ok := cat.Lookup(label)
		if !ok {
			continue
		}
		k.rules = append(k.rules, compile(e))
	}
	if e, ok := cat.Lookup(cfg.fallback); ok {
		k.fallback = compile(e)
	}
	return k
}

func compile(e Entry) rule {
	r := rule{label: e.Name, words: map[string]struct{}{}, mark: e.Name == Question}
	for _, kw := range e.Keywords {
		toks := tokenList(kw)
		switch len(toks) {
		case 0:
		case 1:
			r.words[toks[0]] = struct{}{}
		default:
			r.phrases = append(r.phrases, strings.Join(toks, " "))
		}
	}
	return r
}

// Classify implements Classifier.
func (k *KeywordClassifier) Classify(text string) Result {
	toks := tokenList(text)
	set := make(map[string]struct{}, len(toks))
	for _, t := range toks {
		set[t] = struct{}{}
	}
	joined := " " + strings.Join(toks, " ") + " "
	hasMark := strings.Contains(text, "?")

	for _, r := range k.rules {
		if n := r.hits(set, joined, hasMark); n > 0 {
			return Result{Label: r.label, Confidence: confidence(n)}
		}
	}
	return Result{Label: k.fallback.label, Confidence: confidence(k.fallback.hits(set, joined, hasMark))}
}

func (r rule) hits(set map[string]struct{}, joined string, hasMark bool) int {
	n := 0
	for w := range r.words {
		if _, ok := set[w]; ok {
			n++
		}
	}
	for _, p := range r.phrases {
		if strings.Contains(joined, " "+p+" ") {
			n++
		}
	}
	if r.mark && hasMark {
		n++
	}
	return n
}

func confidence(hits int) float64 {
	if hits > saturatingHits {
		hits = saturatingHits
	}
	return baseConfidence + confidenceSpan*float64(hits)/saturatingHits
}

var wordRE = regexp.MustCompile(`\p{L}+\p{N}*`)

// tokenList lowercases s and returns its word tokens in order.
func tokenList(s string) []string {
	return wordRE.FindAllString(strings.ToLower(s), -1)
}
