package content

import (
	"strings"

	"github.com/google/uuid"
)

// Perturbation probabilities, applied independently per variant.
const (
	pWhitespace  = 0.2
	pPunctuation = 0.25
	pTypo        = 0.3
)

// Variants derives count near-duplicates of the template. Each variant
// may have doubled whitespace after a random sentence, emphasized
// punctuation, or a single-character typo in one random word. The
// perturbations are cosmetic: when none triggers, the variant's content
// equals the original.
func (g *Generator) Variants(tmpl *Template, count int) []*Template {
	if count <= 0 {
		return nil
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	variants := make([]*Template, 0, count)
	for i := 0; i < count; i++ {
		v := *tmpl
		v.ID = uuid.New().String()

		if g.rng.Float64() < pWhitespace {
			v.Body = g.doubleRandomSpace(v.Body)
		}
		if g.rng.Float64() < pPunctuation {
			v.Body = g.emphasizePunctuation(v.Body)
		}
		if g.rng.Float64() < pTypo {
			v.Body = g.typoRandomWord(v.Body)
		}

		variants = append(variants, &v)
	}
	return variants
}

// doubleRandomSpace widens one random inter-word space.
func (g *Generator) doubleRandomSpace(text string) string {
	var positions []int
	for i, r := range text {
		if r == ' ' {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return text
	}
	pos := positions[g.rng.Intn(len(positions))]
	return text[:pos] + " " + text[pos:]
}

// emphasizePunctuation doubles one terminal punctuation mark.
func (g *Generator) emphasizePunctuation(text string) string {
	var positions []int
	for i, r := range text {
		if r == '!' || r == '?' {
			positions = append(positions, i)
		}
	}
	if len(positions) == 0 {
		return text
	}
	pos := positions[g.rng.Intn(len(positions))]
	return text[:pos+1] + string(text[pos]) + text[pos+1:]
}

// typoRandomWord applies one of three single-character typos (adjacent
// swap, duplicate, drop) to a randomly chosen word of at least four
// characters. Placeholder tokens are skipped so variables still resolve.
func (g *Generator) typoRandomWord(text string) string {
	words := strings.Fields(text)

	var candidates []int
	for i, w := range words {
		if len(w) >= 4 && !strings.Contains(w, "{{") {
			candidates = append(candidates, i)
		}
	}
	if len(candidates) == 0 {
		return text
	}

	idx := candidates[g.rng.Intn(len(candidates))]
	word := words[idx]
	pos := 1 + g.rng.Intn(len(word)-2)

	switch g.rng.Intn(3) {
	case 0: // adjacent swap
		b := []byte(word)
		b[pos], b[pos+1] = b[pos+1], b[pos]
		word = string(b)
	case 1: // duplicate
		word = word[:pos] + string(word[pos]) + word[pos:]
	default: // drop
		word = word[:pos] + word[pos+1:]
	}

	// Replace only that occurrence, preserving original spacing around
	// every other word.
	return replaceNthField(text, idx, word)
}

// replaceNthField rebuilds text with field n replaced, keeping the
// original whitespace runs intact.
func replaceNthField(text string, n int, replacement string) string {
	var sb strings.Builder
	field := -1
	i := 0
	for i < len(text) {
		if text[i] == ' ' || text[i] == '\n' || text[i] == '\t' {
			sb.WriteByte(text[i])
			i++
			continue
		}
		start := i
		for i < len(text) && text[i] != ' ' && text[i] != '\n' && text[i] != '\t' {
			i++
		}
		field++
		if field == n {
			sb.WriteString(replacement)
		} else {
			sb.WriteString(text[start:i])
		}
	}
	return sb.String()
}
