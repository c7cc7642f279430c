package intent

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"github.com/tbourn/go-intent-chat/internal/domain"
)

// Intent labels known to the default catalog.
const (
	Greeting = "greeting"
	Question = "question"
	Request  = "request"
	Feedback = "feedback"
	Help     = "help"
	Unknown  = "unknown"
)

// Entry describes one label in a catalog.
type Entry struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Description string   `json:"description"`
	Keywords    []string `json:"keywords"`
	Category    string   `json:"category"`
	Color       string   `json:"color"`
	Threshold   float64  `json:"confidenceThreshold"`
}

// Catalog is an ordered list of entries.
type Catalog []Entry

// DisplayName renders a label for humans, e.g. "greeting" -> "Greeting".
// A Caser is stateful, so each call builds its own.
func DisplayName(label string) string {
	return cases.Title(language.English).String(strings.ReplaceAll(label, "_", " "))
}

// DefaultCatalog returns the seeded intents in classification priority order.
func DefaultCatalog() Catalog {
	c := Catalog{
		{
			Name:        Greeting,
			Description: "User says hello or initiates a social greeting",
			Keywords:    []string{"hello", "hi", "hey", "greetings", "welcome", "howdy"},
			Category:    "social",
			Color:       "#3b82f6",
			Threshold:   0.7,
		},
		{
			Name:        Question,
			Description: "User asks for information or an explanation",
			Keywords:    []string{"what", "why", "how", "when", "where", "who", "which", "can you", "could you"},
			Category:    "inquiry",
			Color:       "#8b5cf6",
			Threshold:   0.65,
		},
		{
			Name:        Request,
			Description: "User asks the assistant to perform an action",
			Keywords:    []string{"please", "can", "could", "would", "will you", "help me", "show me", "tell me"},
			Category:    "action",
			Color:       "#ec4899",
			Threshold:   0.6,
		},
		{
			Name:        Feedback,
			Description: "User shares an opinion or expresses gratitude",
			Keywords:    []string{"good", "bad", "great", "terrible", "love", "hate", "like", "dislike", "thanks", "thank you"},
			Category:    "sentiment",
			Color:       "#f59e0b",
			Threshold:   0.7,
		},
		{
			Name:        Help,
			Description: "User reports a problem or needs support",
			Keywords:    []string{"help", "support", "issue", "problem", "bug", "error", "fix", "broken"},
			Category:    "support",
			Color:       "#ef4444",
			Threshold:   0.75,
		},
		{
			Name:        Unknown,
			Description: "Message does not match any known intent",
			Keywords:    nil,
			Category:    "other",
			Color:       "#6b7280",
			Threshold:   0,
		},
	}
	for i := range c {
		c[i].DisplayName = DisplayName(c[i].Name)
	}
	return c
}

// Lookup finds an entry by name.
func (c Catalog) Lookup(name string) (Entry, bool) {
	for _, e := range c {
		if e.Name == name {
			return e, true
		}
	}
	return Entry{}, false
}

// Records converts the catalog to rows for persistence.
func (c Catalog) Records() []domain.Intent {
	out := make([]domain.Intent, 0, len(c))
	for _, e := range c {
		out = append(out, domain.Intent{
			Name:                e.Name,
			Description:         e.Description,
			Keywords:            strings.Join(e.Keywords, ","),
			Category:            e.Category,
			Color:               e.Color,
			ConfidenceThreshold: e.Threshold,
		})
	}
	return out
}

// FromRecords rebuilds a catalog from stored rows. Rows are reordered to
// follow the default priority; names the default catalog does not know are
// appended in the order given.
func FromRecords(rows []domain.Intent) Catalog {
	rank := map[string]int{}
	for i, e := range DefaultCatalog() {
		rank[e.Name] = i
	}
	known := make(Catalog, len(rank))
	present := make([]bool, len(rank))
	var extra Catalog
	for _, r := range rows {
		e := Entry{
			Name:        r.Name,
			DisplayName: DisplayName(r.Name),
			Description: r.Description,
			Keywords:    splitKeywords(r.Keywords),
			Category:    r.Category,
			Color:       r.Color,
			Threshold:   r.ConfidenceThreshold,
		}
		if i, ok := rank[r.Name]; ok {
			known[i], present[i] = e, true
			continue
		}
		extra = append(extra, e)
	}
	out := make(Catalog, 0, len(rows))
	for i, e := range known {
		if present[i] {
			out = append(out, e)
		}
	}
	return append(out, extra...)
}

func splitKeywords(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
