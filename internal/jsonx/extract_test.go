package jsonx

import "testing"

func TestStripFences(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected string
	}{
		{
			name:     "no fences",
			input:    `{"code": ["print(1)"]}`,
			expected: `{"code": ["print(1)"]}`,
		},
		{
			name:     "json fence",
			input:    "```json\n{\"final answer\": \"42\"}\n```",
			expected: `{"final answer": "42"}`,
		},
		{
			name:     "bare fence",
			input:    "```\n{\"a\": 1}\n```",
			expected: `{"a": 1}`,
		},
		{
			name:     "python fence",
			input:    "```python\nprint(1)\n```",
			expected: "print(1)",
		},
		{
			name:     "surrounding whitespace",
			input:    "  \n```json\n{}\n```  ",
			expected: "{}",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := StripFences(tt.input)
			if got != tt.expected {
				t.Errorf("StripFences(%q) = %q, want %q", tt.input, got, tt.expected)
			}
		})
	}
}
