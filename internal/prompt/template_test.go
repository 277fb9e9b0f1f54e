package prompt

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestRender(t *testing.T) {
	tests := []struct {
		name string
		body string
		vars map[string]string
		want string
	}{
		{
			name: "basic substitution",
			body: "Hello {{name}}, welcome to {{place}}.",
			vars: map[string]string{"name": "Ada", "place": "the lab"},
			want: "Hello Ada, welcome to the lab.",
		},
		{
			name: "missing variable left verbatim",
			body: "Hello {{name}}, you are {{age}} years old.",
			vars: map[string]string{"name": "Ada"},
			want: "Hello Ada, you are {{age}} years old.",
		},
		{
			name: "extra variables ignored",
			body: "Hello {{name}}.",
			vars: map[string]string{"name": "Ada", "unused": "x"},
			want: "Hello Ada.",
		},
		{
			name: "repeated variable",
			body: "{{x}} and {{x}} again",
			vars: map[string]string{"x": "once"},
			want: "once and once again",
		},
		{
			name: "no placeholders",
			body: "plain text",
			vars: map[string]string{"name": "Ada"},
			want: "plain text",
		},
		{
			name: "empty body",
			body: "",
			vars: map[string]string{"name": "Ada"},
			want: "",
		},
		{
			name: "nil vars",
			body: "Hello {{name}}.",
			vars: nil,
			want: "Hello {{name}}.",
		},
		{
			name: "malformed braces untouched",
			body: "{{ spaced }} {single} {{{name}}}",
			vars: map[string]string{"name": "Ada", "spaced": "x", "single": "y"},
			want: "{{ spaced }} {single} {Ada}",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Render(tt.body, tt.vars))
		})
	}
}

// Substituted values must never be treated as placeholders themselves.
func TestRenderValueContainingPlaceholder(t *testing.T) {
	got := Render("{{outer}}", map[string]string{
		"outer": "{{inner}}",
		"inner": "should never appear",
	})
	assert.Equal(t, "{{inner}}", got)
}

func TestExtractVariables(t *testing.T) {
	assert.Equal(t, []string{"b", "a", "c"}, ExtractVariables("{{b}} {{a}} {{b}} {{c}}"))
	assert.Nil(t, ExtractVariables("no placeholders here"))
	assert.Equal(t, []string{"under_score", "num1"}, ExtractVariables("{{under_score}} {{num1}}"))
}

func TestMissingVariables(t *testing.T) {
	body := "{{a}} {{b}} {{c}}"
	assert.Equal(t, []string{"b", "c"}, MissingVariables(body, map[string]string{"a": "1"}))
	assert.Nil(t, MissingVariables(body, map[string]string{"a": "1", "b": "2", "c": "3"}))
}
