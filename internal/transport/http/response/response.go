package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docchat/internal/app"
	"docchat/internal/backend"
	"docchat/internal/session"
)

const (
	CodeOK             = 0
	CodeBadRequest     = 40000
	CodeUnauthorized   = 40100
	CodeSessionExpired = 40101
	CodeFeatureLocked  = 40301
	CodeNotFound       = 40400
	CodeQuotaExceeded  = 42900
	CodeInternalServer = 50000
	CodeBadGateway     = 50200
	CodeUnavailable    = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

// ErrorData tells the caller which flow to start instead of showing the
// message inline.
type ErrorData struct {
	Error    string       `json:"error,omitempty"`
	Redirect app.Redirect `json:"redirect,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

func ErrorWithData(c *gin.Context, httpStatus, code int, message string, data interface{}) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
		Data:    data,
	})
}

// Status maps an error from the view-models or the backend to an HTTP
// status, a numeric code and the message the user should see.
func Status(err error) (int, int, string) {
	var apiErr *backend.APIError
	switch {
	case errors.Is(err, app.ErrEmptyQuery),
		errors.Is(err, app.ErrInvalidTarget),
		errors.Is(err, app.ErrInvalidOutput),
		errors.Is(err, app.ErrNoConversation):
		return http.StatusBadRequest, CodeBadRequest, err.Error()
	case errors.Is(err, session.ErrNoSession):
		return http.StatusUnauthorized, CodeSessionExpired, "session expired"
	case errors.Is(err, session.ErrInvalidToken), errors.Is(err, backend.ErrUnauthorized):
		return http.StatusUnauthorized, CodeUnauthorized, "unauthorized"
	case backend.IsQuotaExceeded(err):
		return http.StatusTooManyRequests, CodeQuotaExceeded, backend.UserMessage(err)
	case errors.Is(err, backend.ErrFeatureLocked):
		return http.StatusForbidden, CodeFeatureLocked, backend.UserMessage(err)
	case errors.Is(err, app.ErrTranscriptEnqueue):
		return http.StatusServiceUnavailable, CodeUnavailable, err.Error()
	case errors.As(err, &apiErr):
		if apiErr.StatusCode == http.StatusNotFound {
			return http.StatusNotFound, CodeNotFound, backend.UserMessage(err)
		}
		return http.StatusBadGateway, CodeBadGateway, backend.UserMessage(err)
	default:
		return http.StatusInternalServerError, CodeInternalServer, backend.DefaultFailureMessage
	}
}

// Fail writes err as an error envelope carrying the backend error code and
// any redirect.
func Fail(c *gin.Context, err error) {
	status, code, msg := Status(err)
	data := ErrorData{Redirect: app.RedirectFor(err)}
	var apiErr *backend.APIError
	if errors.As(err, &apiErr) {
		data.Error = apiErr.Code
	}
	if data.Error == "" && data.Redirect == app.RedirectNone {
		Error(c, status, code, msg)
		return
	}
	ErrorWithData(c, status, code, msg, data)
}
