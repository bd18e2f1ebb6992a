package llm

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestBuildArgs(t *testing.T) {
	tests := []struct {
		name     string
		client   *ClaudeCLI
		req      CompletionRequest
		contains []string
		excludes []string
	}{
		{
			name:     "basic request",
			client:   NewClaudeCLI(),
			req:      Prompt("", "Hello"),
			contains: []string{"--print"},
			excludes: []string{"--model", "--system-prompt", "Hello"},
		},
		{
			name:     "with system prompt",
			client:   NewClaudeCLI(),
			req:      Prompt("Be helpful", "Hi"),
			contains: []string{"--system-prompt", "Be helpful"},
		},
		{
			name:     "model from client",
			client:   NewClaudeCLI(WithModel("sonnet")),
			req:      Prompt("", "Test"),
			contains: []string{"--model", "sonnet"},
		},
		{
			name:     "model from request overrides client",
			client:   NewClaudeCLI(WithModel("default-model")),
			req:      CompletionRequest{Model: "request-model"},
			contains: []string{"--model", "request-model"},
			excludes: []string{"default-model"},
		},
		{
			name:     "max tokens",
			client:   NewClaudeCLI(),
			req:      CompletionRequest{MaxTokens: 1000},
			contains: []string{"--max-tokens", "1000"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := tt.client.buildArgs(tt.req)
			for _, want := range tt.contains {
				assert.Contains(t, args, want)
			}
			for _, not := range tt.excludes {
				assert.NotContains(t, args, not)
			}
		})
	}
}

func TestIsRetryableError(t *testing.T) {
	tests := []struct {
		msg  string
		want bool
	}{
		{"Rate limit exceeded", true},
		{"request timeout", true},
		{"API overloaded", true},
		{"HTTP 503", true},
		{"status 529", true},
		{"invalid api key", false},
		{"", false},
	}
	for _, tt := range tests {
		t.Run(tt.msg, func(t *testing.T) {
			assert.Equal(t, tt.want, isRetryableError(tt.msg))
		})
	}
}

func TestApproxTokens(t *testing.T) {
	assert.Equal(t, 1, approxTokens(""))
	assert.Equal(t, 3, approxTokens("12345678"))
}
