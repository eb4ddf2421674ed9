package llm

import (
	"encoding/json"
	"errors"
	"net/http"
	"testing"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agenthands/keepsake/internal/apperr"
)

func TestClassifyOpenAIError(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want apperr.Kind
	}{
		{"rate limit", &openai.APIError{HTTPStatusCode: http.StatusTooManyRequests}, apperr.KindRateLimited},
		{"server error", &openai.APIError{HTTPStatusCode: http.StatusBadGateway}, apperr.KindRateLimited},
		{"auth", &openai.APIError{HTTPStatusCode: http.StatusUnauthorized}, apperr.KindAuthFailure},
		{"request auth", &openai.RequestError{HTTPStatusCode: http.StatusForbidden, Err: errors.New("x")}, apperr.KindAuthFailure},
		{"bad request", &openai.APIError{HTTPStatusCode: http.StatusBadRequest}, apperr.KindUpstream},
		{"decode", &json.SyntaxError{}, apperr.KindMalformedPayload},
		{"other", errors.New("dial tcp: refused"), apperr.KindUpstream},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := classifyOpenAIError("openai", tt.err)
			assert.Equal(t, tt.want, apperr.KindOf(got))
			assert.ErrorIs(t, got, tt.err)
		})
	}
	assert.NoError(t, classifyOpenAIError("openai", nil))
}

func TestClassifyClaudeError(t *testing.T) {
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(classifyClaudeError(&anthropic.APIError{Type: anthropic.ErrTypeOverloaded})))
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(classifyClaudeError(&anthropic.APIError{Type: anthropic.ErrTypeRateLimit})))
	assert.Equal(t, apperr.KindAuthFailure, apperr.KindOf(classifyClaudeError(&anthropic.APIError{Type: anthropic.ErrTypeAuthentication})))
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(classifyClaudeError(&anthropic.RequestError{StatusCode: 529, Err: errors.New("x")})))
	assert.True(t, apperr.IsRetryable(classifyClaudeError(&anthropic.APIError{Type: anthropic.ErrTypeRateLimit})))
}

func TestClassifyGeminiError(t *testing.T) {
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(classifyGeminiError(&googleapi.Error{Code: 429})))
	assert.Equal(t, apperr.KindAuthFailure, apperr.KindOf(classifyGeminiError(&googleapi.Error{Code: 403})))
	assert.Equal(t, apperr.KindRateLimited, apperr.KindOf(classifyGeminiError(status.Error(codes.ResourceExhausted, "quota"))))
	assert.Equal(t, apperr.KindAuthFailure, apperr.KindOf(classifyGeminiError(status.Error(codes.Unauthenticated, "key"))))
	assert.Equal(t, apperr.KindUpstream, apperr.KindOf(classifyGeminiError(status.Error(codes.InvalidArgument, "bad"))))
}
