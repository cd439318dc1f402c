package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestURLPolicy_Allow(t *testing.T) {
	policy, err := NewURLPolicy("https://github.com/*", "  ", "https://*.example.com/*")
	require.NoError(t, err)
	assert.Equal(t, []string{"https://github.com/*", "https://*.example.com/*"}, policy.Patterns())

	tests := []struct {
		url     string
		allowed bool
	}{
		{"https://github.com/login", true},
		{"https://github.com/entrhq/webapp/pulls", true},
		{"https://docs.example.com/a/b", true},
		{"https://github.com", false},
		{"http://github.com/login", false},
		{"https://example.org/", false},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			err := policy.Allow(tt.url)
			if tt.allowed {
				assert.NoError(t, err)
			} else {
				assert.ErrorIs(t, err, ErrURLNotAllowed)
			}
		})
	}
}

func TestURLPolicy_EmptyAllowsEverything(t *testing.T) {
	var nilPolicy *URLPolicy
	assert.NoError(t, nilPolicy.Allow("https://anything.test"))
	assert.Nil(t, nilPolicy.Patterns())

	empty, err := NewURLPolicy()
	require.NoError(t, err)
	assert.NoError(t, empty.Allow("https://anything.test"))
}

func TestNewURLPolicy_InvalidPattern(t *testing.T) {
	_, err := NewURLPolicy("https://github.com/[")
	assert.Error(t, err)
}
