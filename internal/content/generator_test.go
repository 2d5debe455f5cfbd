package content

import (
	"math/rand"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testGenerator() *Generator {
	return NewGenerator(rand.New(rand.NewSource(1)))
}

func TestGenerate(t *testing.T) {
	gen := testGenerator()

	tmpl, err := gen.Generate(Params{Type: TypeGreeting, Language: "en", Length: LengthLong})
	require.NoError(t, err)

	assert.NotEmpty(t, tmpl.ID)
	assert.NotEmpty(t, tmpl.Subject)
	assert.Equal(t, TypeGreeting, tmpl.Type)
	assert.Equal(t, "en", tmpl.Language)

	// greeting + 3 paragraphs + closing, separated by blank lines.
	blocks := strings.Split(tmpl.Body, "\n\n")
	assert.Len(t, blocks, 5)
}

func TestGenerateUnknownLanguageFallsBack(t *testing.T) {
	gen := testGenerator()

	tmpl, err := gen.Generate(Params{Type: TypeThanks, Language: "xx"})
	require.NoError(t, err)
	assert.Equal(t, defaultLanguage, tmpl.Language)
}

func TestGenerateDefaultsType(t *testing.T) {
	gen := testGenerator()

	tmpl, err := gen.Generate(Params{Language: "pt"})
	require.NoError(t, err)
	assert.Equal(t, TypeGreeting, tmpl.Type)
	assert.Equal(t, "pt", tmpl.Language)
}

func TestInterpolate(t *testing.T) {
	tests := []struct {
		name string
		text string
		vars map[string]string
		want string
	}{
		{
			name: "simple substitution",
			text: "Hi {{name}}!",
			vars: map[string]string{"name": "Ana"},
			want: "Hi Ana!",
		},
		{
			name: "whitespace inside braces",
			text: "Hi {{ name }}!",
			vars: map[string]string{"name": "Ana"},
			want: "Hi Ana!",
		},
		{
			name: "undeclared placeholder stays literal",
			text: "Hi {{name}}, about {{topic}}",
			vars: map[string]string{"name": "Ana"},
			want: "Hi Ana, about {{topic}}",
		},
		{
			name: "repeated placeholder",
			text: "{{x}} and {{x}}",
			vars: map[string]string{"x": "y"},
			want: "y and y",
		},
		{
			name: "no vars",
			text: "plain text",
			vars: nil,
			want: "plain text",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, Interpolate(tc.text, tc.vars))
		})
	}
}

func TestTemplateResolve(t *testing.T) {
	tmpl := &Template{
		ID:      "t1",
		Subject: "Hello {{receiver_name}}",
		Body:    "From {{sender_name}} to {{receiver_name}}",
	}

	resolved := tmpl.Resolve(map[string]string{
		"sender_name":   "ana",
		"receiver_name": "bruno",
	})

	assert.Equal(t, "Hello bruno", resolved.Subject)
	assert.Equal(t, "From ana to bruno", resolved.Body)

	// The original template is untouched.
	assert.Contains(t, tmpl.Subject, "{{receiver_name}}")
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry()

	_, err := reg.Template("missing")
	require.Error(t, err)

	reg.Register(&Template{ID: "greeting", Subject: "hi"})
	got, err := reg.Template("greeting")
	require.NoError(t, err)
	assert.Equal(t, "hi", got.Subject)
}
