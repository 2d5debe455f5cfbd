// Package content generates message templates from per-language phrase
// pools and derives near-duplicate variants, so repeated warmup sends do
// not share an identical content fingerprint.
package content

import (
	"fmt"
	"math/rand"
	"regexp"
	"strings"
	"sync"

	"github.com/google/uuid"
)

// TemplateType selects the subject bank a template draws from.
type TemplateType string

const (
	TypeGreeting TemplateType = "greeting"
	TypeQuestion TemplateType = "question"
	TypeUpdate   TemplateType = "update"
	TypeThanks   TemplateType = "thanks"
)

// Length controls how many body paragraphs a generated template carries.
type Length string

const (
	LengthShort  Length = "short"  // 1 paragraph
	LengthMedium Length = "medium" // 2 paragraphs
	LengthLong   Length = "long"   // 3 paragraphs
)

func (l Length) paragraphs() int {
	switch l {
	case LengthShort:
		return 1
	case LengthLong:
		return 3
	default:
		return 2
	}
}

// Template is one generated subject/body pair. Placeholders of the form
// {{name}} remain in the text until Interpolate resolves them.
type Template struct {
	ID       string
	Type     TemplateType
	Language string
	Subject  string
	Body     string
}

// Params controls template generation.
type Params struct {
	Type     TemplateType
	Language string
	Length   Length
}

// Generator produces templates and variants. The random source is
// injectable so tests can be deterministic.
type Generator struct {
	mu  sync.Mutex
	rng *rand.Rand
}

// NewGenerator creates a generator seeded from the given source; pass
// nil for a time-seeded one.
func NewGenerator(rng *rand.Rand) *Generator {
	if rng == nil {
		rng = rand.New(rand.NewSource(rand.Int63()))
	}
	return &Generator{rng: rng}
}

// Generate assembles a template: subject, greeting, body paragraphs
// (count per Length), closing, and signature, all drawn from the
// language's phrase pool.
func (g *Generator) Generate(p Params) (*Template, error) {
	lang := strings.ToLower(p.Language)
	pool, ok := pools[lang]
	if !ok {
		lang = defaultLanguage
		pool = pools[lang]
	}

	if p.Type == "" {
		p.Type = TypeGreeting
	}
	subjects, ok := pool.subjects[p.Type]
	if !ok {
		return nil, fmt.Errorf("no %q subjects for language %q", p.Type, lang)
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	var body strings.Builder
	body.WriteString(pick(g.rng, pool.greetings))
	body.WriteString("\n\n")

	count := p.Length.paragraphs()
	used := make(map[int]bool, count)
	for i := 0; i < count; i++ {
		idx := g.rng.Intn(len(pool.paragraphs))
		for used[idx] && len(used) < len(pool.paragraphs) {
			idx = g.rng.Intn(len(pool.paragraphs))
		}
		used[idx] = true
		body.WriteString(pool.paragraphs[idx])
		body.WriteString("\n\n")
	}

	body.WriteString(pick(g.rng, pool.closings))
	body.WriteString("\n")
	body.WriteString(pick(g.rng, pool.signatures))

	return &Template{
		ID:       uuid.New().String(),
		Type:     p.Type,
		Language: lang,
		Subject:  pick(g.rng, subjects),
		Body:     body.String(),
	}, nil
}

func pick(rng *rand.Rand, options []string) string {
	return options[rng.Intn(len(options))]
}

var placeholderRe = regexp.MustCompile(`\{\{\s*([a-zA-Z0-9_]+)\s*\}\}`)

// Interpolate resolves {{variable}} placeholders from vars. A declared
// variable always resolves; an undeclared placeholder stays literal in
// the output rather than being silently dropped.
func Interpolate(text string, vars map[string]string) string {
	return placeholderRe.ReplaceAllStringFunc(text, func(match string) string {
		name := placeholderRe.FindStringSubmatch(match)[1]
		if val, ok := vars[name]; ok {
			return val
		}
		return match
	})
}

// Resolve returns a copy of the template with placeholders interpolated
// in both subject and body.
func (t *Template) Resolve(vars map[string]string) *Template {
	resolved := *t
	resolved.Subject = Interpolate(t.Subject, vars)
	resolved.Body = Interpolate(t.Body, vars)
	return &resolved
}
