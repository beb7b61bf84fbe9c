package backend

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// Error codes sent by the backend in detail.error.
const (
	CodeQueryLimitExceeded   = "query_limit_exceeded"
	CodeMessageLimitExceeded = "message_limit_exceeded"
	CodeFeatureLocked        = "feature_locked"
)

const DefaultFailureMessage = "Failed to get response"

var (
	ErrQueryLimitExceeded   = errors.New("query limit exceeded")
	ErrMessageLimitExceeded = errors.New("message limit exceeded")
	ErrFeatureLocked        = errors.New("feature locked")
	ErrUnauthorized         = errors.New("unauthorized")
)

// APIError is a non-2xx response from the backend.
type APIError struct {
	StatusCode int
	Code       string
	Message    string
}

func (e *APIError) Error() string {
	if e.Code != "" {
		return fmt.Sprintf("backend status %d: %s: %s", e.StatusCode, e.Code, e.Message)
	}
	return fmt.Sprintf("backend status %d: %s", e.StatusCode, e.Message)
}

func (e *APIError) Is(target error) bool {
	switch target {
	case ErrQueryLimitExceeded:
		return e.Code == CodeQueryLimitExceeded
	case ErrMessageLimitExceeded:
		return e.Code == CodeMessageLimitExceeded
	case ErrFeatureLocked:
		return e.Code == CodeFeatureLocked
	case ErrUnauthorized:
		return e.StatusCode == http.StatusUnauthorized
	}
	return false
}

// IsQuotaExceeded groups the two plan quota errors; callers send the user to
// the upgrade flow for either.
func IsQuotaExceeded(err error) bool {
	return errors.Is(err, ErrQueryLimitExceeded) || errors.Is(err, ErrMessageLimitExceeded)
}

// UserMessage is the inline text to show for err.
func UserMessage(err error) string {
	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		return apiErr.Message
	}
	return DefaultFailureMessage
}

// decodeAPIError reads {"detail": {"error": ..., "message": ...}}. detail may
// also be a bare string.
func decodeAPIError(status int, raw []byte) *APIError {
	apiErr := &APIError{StatusCode: status}

	var body struct {
		Detail json.RawMessage `json:"detail"`
	}
	if err := json.Unmarshal(raw, &body); err != nil || len(body.Detail) == 0 {
		apiErr.Message = DefaultFailureMessage
		return apiErr
	}

	var detail struct {
		Error   string `json:"error"`
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body.Detail, &detail); err == nil {
		apiErr.Code = strings.TrimSpace(detail.Error)
		apiErr.Message = strings.TrimSpace(detail.Message)
	} else {
		var text string
		if err := json.Unmarshal(body.Detail, &text); err == nil {
			apiErr.Message = strings.TrimSpace(text)
		}
	}
	if apiErr.Message == "" {
		apiErr.Message = DefaultFailureMessage
	}
	return apiErr
}
