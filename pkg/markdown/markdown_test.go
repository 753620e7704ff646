package markdown

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestToHTML(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		contains []string
		excludes []string
	}{
		{
			name:     "bold",
			input:    "**Keep** going",
			contains: []string{"<strong>Keep</strong>"},
		},
		{
			name:     "bullet list",
			input:    "- first\n- second",
			contains: []string{"<ul>", "<li>first</li>", "<li>second</li>"},
		},
		{
			name:     "script stripped",
			input:    "hello <script>alert(1)</script>",
			contains: []string{"hello"},
			excludes: []string{"<script", "alert(1)"},
		},
		{
			name:     "javascript link stripped",
			input:    "[x](javascript:alert(1))",
			excludes: []string{"javascript:"},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			out := ToHTML(tt.input)
			for _, s := range tt.contains {
				assert.Contains(t, out, s)
			}
			for _, s := range tt.excludes {
				assert.NotContains(t, out, s)
			}
		})
	}
}

func TestToHTML_Empty(t *testing.T) {
	assert.Equal(t, "", ToHTML(""))
	assert.Equal(t, "", ToHTML("  \n"))
}
