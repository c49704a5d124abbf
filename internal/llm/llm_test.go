package llm

import (
	"errors"
	"net/http"
	"testing"

	openai "github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
)

func TestIsRetryableServerError(t *testing.T) {
	err := &openai.APIError{HTTPStatusCode: http.StatusInternalServerError}
	assert.True(t, isRetryable(err))
}

func TestIsRetryableClientErrorNotRetried(t *testing.T) {
	err := &openai.APIError{HTTPStatusCode: http.StatusBadRequest}
	assert.False(t, isRetryable(err))
}

func TestIsRetryableGenericNetworkError(t *testing.T) {
	assert.True(t, isRetryable(errors.New("connection reset")))
}
