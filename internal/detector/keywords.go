package detector

import (
	"fmt"
	"os"
	"strings"

	"github.com/nousloopsolutions/NoUS-mINd-SENTinel/internal/models"

	"gopkg.in/yaml.v3"
)

// Category is one keyword category with its severity rank
type Category struct {
	Name    string   `yaml:"name"`
	Rank    int      `yaml:"rank"`
	Phrases []string `yaml:"phrases"`
}

// Dictionary is an ordered, read-only set of keyword categories.
// Category order decides the order of matched categories in results.
type Dictionary struct {
	categories []Category
}

// NewDictionary copies cats into a dictionary with lower-cased phrases
func NewDictionary(cats []Category) (*Dictionary, error) {
	seen := make(map[string]bool, len(cats))
	out := make([]Category, 0, len(cats))
	for _, c := range cats {
		name := strings.ToUpper(strings.TrimSpace(c.Name))
		if name == "" {
			return nil, fmt.Errorf("keyword category without name")
		}
		if seen[name] {
			return nil, fmt.Errorf("duplicate keyword category %q", name)
		}
		seen[name] = true

		phrases := make([]string, 0, len(c.Phrases))
		for _, p := range c.Phrases {
			if p == "" {
				continue
			}
			phrases = append(phrases, strings.ToLower(p))
		}
		out = append(out, Category{Name: name, Rank: c.Rank, Phrases: phrases})
	}
	return &Dictionary{categories: out}, nil
}

// LoadDictionary reads categories from a YAML file of the form
// categories: [{name, rank, phrases}]
func LoadDictionary(path string) (*Dictionary, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read keyword file: %w", err)
	}

	var file struct {
		Categories []Category `yaml:"categories"`
	}
	if err := yaml.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("failed to decode keyword file: %w", err)
	}
	if len(file.Categories) == 0 {
		return nil, fmt.Errorf("keyword file %s defines no categories", path)
	}

	return NewDictionary(file.Categories)
}

// Categories returns a copy of the dictionary contents
func (d *Dictionary) Categories() []Category {
	out := make([]Category, len(d.categories))
	for i, c := range d.categories {
		out[i] = Category{Name: c.Name, Rank: c.Rank, Phrases: append([]string(nil), c.Phrases...)}
	}
	return out
}

// Match returns the categories with at least one phrase contained in body,
// in dictionary order.
func (d *Dictionary) Match(body string) []string {
	lower := strings.ToLower(body)
	var matched []string
	for _, c := range d.categories {
		for _, p := range c.Phrases {
			if strings.Contains(lower, p) {
				matched = append(matched, c.Name)
				break
			}
		}
	}
	return matched
}

// Rank returns the severity rank of a category, 0 if unknown
func (d *Dictionary) Rank(category string) int {
	for _, c := range d.categories {
		if c.Name == category {
			return c.Rank
		}
	}
	return 0
}

// Severity maps the highest rank among matched categories to a label
func (d *Dictionary) Severity(matched []string) string {
	best := 0
	for _, name := range matched {
		if r := d.Rank(name); r > best {
			best = r
		}
	}
	switch {
	case best >= 3:
		return models.SeverityHigh
	case best >= 2:
		return models.SeverityMedium
	default:
		return models.SeverityLow
	}
}

// DefaultDictionary returns the built-in categories
func DefaultDictionary() *Dictionary {
	d, err := NewDictionary(defaultCategories)
	if err != nil {
		panic(err)
	}
	return d
}

var defaultCategories = []Category{
	{
		Name: "INSULT",
		Rank: 2,
		Phrases: []string{
			"stupid", "idiot", "dumb", "worthless", "pathetic", "loser",
			"moron", "useless", "garbage", "trash", "disgusting", "failure",
			"incompetent", "ignorant", "ugly", "hate you", "shut up",
			"you never", "you always", "you are the problem", "typical you",
			"piece of work", "embarrassment", "joke", "waste of",
		},
	},
	{
		Name: "THREAT",
		Rank: 3,
		Phrases: []string{
			"you will regret", "i will make sure", "watch yourself",
			"you better", "or else", "i will destroy", "see what happens",
			"i will take", "you will lose", "ill take the kids",
			"i'll take the kids", "take everything", "lawyer", "sue you",
			"court", "restraining order", "call the police", "report you",
			"expose you", "tell everyone", "you have no idea what",
			"make your life", "won't get away",
		},
	},
	{
		Name: "MANIPULATION",
		Rank: 2,
		Phrases: []string{
			"after everything i", "you never care", "only think of yourself",
			"nobody else would", "look what you made", "you made me do",
			"if you loved me", "you owe me", "i gave up everything",
			"you always do this", "this is your fault", "you ruined",
			"because of you", "how could you", "you should feel",
			"stop playing victim", "you imagined", "did not happen",
			"that never happened", "you are crazy", "you are insane",
			"you are overreacting", "so sensitive", "too emotional",
			"no one will believe", "no one believes you",
		},
	},
	{
		Name: "CUSTODY",
		Rank: 1,
		Phrases: []string{
			"custody", "visitation", "parenting time", "the kids", "our kids",
			"my kids", "the children", "our children", "pickup", "drop off",
			"drop-off", "pick up", "pick-up", "school", "daycare",
			"child support", "guardian", "parenting plan", "holiday",
			"court order", "modification", "contempt", "guardian ad litem",
			"gal ", "mediator", "mediation", "custody hearing", "judge",
			"attorney", "supervised visit", "unsupervised", "physical custody",
			"legal custody", "primary residence",
		},
	},
	{
		Name: "POSITIVE",
		Rank: 0,
		Phrases: []string{
			"i love you", "love you", "i appreciate", "thank you",
			"i'm sorry", "im sorry", "proud of you", "you are amazing",
			"you are great", "i miss you", "thinking of you", "i care",
			"you matter", "well done", "good job", "i support",
			"here for you", "i understand", "i believe you",
			"you are doing great", "so grateful",
		},
	},
}
