package llm

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/liushuangls/go-anthropic/v2"
	"github.com/sashabaranov/go-openai"
	"google.golang.org/api/googleapi"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/agenthands/keepsake/internal/apperr"
)

func classifyStatus(provider string, code int, err error) error {
	switch {
	case code == http.StatusTooManyRequests:
		return apperr.RateLimited(provider, err)
	case code == http.StatusUnauthorized || code == http.StatusForbidden:
		return apperr.AuthFailure(provider, err)
	case code >= 500:
		// Overloaded upstreams behave like throttling.
		return apperr.RateLimited(provider, err)
	}
	return apperr.Upstream(provider, err)
}

func isDecodeError(err error) bool {
	var syntaxErr *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	return errors.As(err, &syntaxErr) || errors.As(err, &typeErr)
}

// classifyOpenAIError maps go-openai failures onto the error taxonomy.
func classifyOpenAIError(provider string, err error) error {
	if err == nil {
		return nil
	}
	if isDecodeError(err) {
		return apperr.MalformedPayload(provider, err)
	}
	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return classifyStatus(provider, apiErr.HTTPStatusCode, err)
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(provider, reqErr.HTTPStatusCode, err)
	}
	return apperr.Upstream(provider, err)
}

func classifyClaudeError(err error) error {
	if err == nil {
		return nil
	}
	const provider = "claude"
	if isDecodeError(err) {
		return apperr.MalformedPayload(provider, err)
	}
	var apiErr *anthropic.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.Type {
		case anthropic.ErrTypeRateLimit, anthropic.ErrTypeOverloaded:
			return apperr.RateLimited(provider, err)
		case anthropic.ErrTypeAuthentication, anthropic.ErrTypePermission:
			return apperr.AuthFailure(provider, err)
		}
		return apperr.Upstream(provider, err)
	}
	var reqErr *anthropic.RequestError
	if errors.As(err, &reqErr) {
		return classifyStatus(provider, reqErr.StatusCode, err)
	}
	return apperr.Upstream(provider, err)
}

func classifyGeminiError(err error) error {
	if err == nil {
		return nil
	}
	const provider = "gemini"
	var gErr *googleapi.Error
	if errors.As(err, &gErr) {
		return classifyStatus(provider, gErr.Code, err)
	}
	switch status.Code(err) {
	case codes.ResourceExhausted, codes.Unavailable:
		return apperr.RateLimited(provider, err)
	case codes.Unauthenticated, codes.PermissionDenied:
		return apperr.AuthFailure(provider, err)
	}
	if isDecodeError(err) {
		return apperr.MalformedPayload(provider, err)
	}
	return apperr.Upstream(provider, err)
}
