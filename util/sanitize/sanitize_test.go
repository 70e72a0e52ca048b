package sanitize

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestForFilename(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"MyApp", "myapp"},
		{"My App", "my-app"},
		{"my_app.ios", "my-app-ios"},
		{"--weird!!name--", "weird-name"},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			assert.Equal(t, tt.expected, ForFilename(tt.input))
		})
	}
}

func TestForFilenameTruncates(t *testing.T) {
	long := "abcdefghijklmnopqrstuvwxyzabcdefghijklmnopqrstuvwxyzabcdefghij"
	assert.Len(t, ForFilename(long), 50)
}

func TestForLabel(t *testing.T) {
	assert.Equal(t, "App", ForLabel("  App "))
	assert.Equal(t, "My-App", ForLabel("My App"))
	assert.Equal(t, "App.Tests", ForLabel("App.Tests"))
	assert.Equal(t, "a-b", ForLabel("a\n\tb"))
}
