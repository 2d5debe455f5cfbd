package content

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestVariants(t *testing.T) {
	gen := testGenerator()
	tmpl := &Template{
		ID:      "base",
		Subject: "Quick question",
		Body:    "Hello {{receiver_name}}! How have things been going lately?",
	}

	variants := gen.Variants(tmpl, 10)
	require.Len(t, variants, 10)

	for _, v := range variants {
		// Fresh identity, same subject.
		assert.NotEqual(t, tmpl.ID, v.ID)
		assert.Equal(t, tmpl.Subject, v.Subject)

		// Perturbations never touch placeholder tokens.
		assert.Contains(t, v.Body, "{{receiver_name}}")

		// Word count only grows by whitespace doubling, never shrinks.
		assert.GreaterOrEqual(t, len(strings.Fields(v.Body)), len(strings.Fields(tmpl.Body)))
	}

	// The original stays untouched.
	assert.Equal(t, "Hello {{receiver_name}}! How have things been going lately?", tmpl.Body)
}

func TestVariantsZeroCount(t *testing.T) {
	gen := testGenerator()
	assert.Nil(t, gen.Variants(&Template{Body: "x"}, 0))
}

func TestTypoRandomWordSkipsPlaceholders(t *testing.T) {
	gen := NewGenerator(rand.New(rand.NewSource(7)))

	// Every word except the placeholder is too short to mutate, so the
	// text must come back unchanged.
	out := gen.typoRandomWord("hi to {{receiver_name}} ok")
	assert.Equal(t, "hi to {{receiver_name}} ok", out)
}

func TestReplaceNthField(t *testing.T) {
	assert.Equal(t, "a X c", replaceNthField("a b c", 1, "X"))
	assert.Equal(t, "a  b\nX", replaceNthField("a  b\nc", 2, "X"))
	assert.Equal(t, "X b", replaceNthField("a b", 0, "X"))
}

func TestEmphasizePunctuation(t *testing.T) {
	gen := testGenerator()
	out := gen.emphasizePunctuation("Really? Yes!")
	assert.True(t, strings.Contains(out, "??") || strings.Contains(out, "!!"))

	// No terminal punctuation means no change.
	assert.Equal(t, "plain words", gen.emphasizePunctuation("plain words"))
}
