package apperror

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// envelope is the JSON body of every rejected request:
// {"error": {"code": "...", "message": "..."}}.
type envelope struct {
	Error *Error `json:"error"`
}

// JSON writes err as the error envelope on c. Middleware uses this to
// short-circuit with a terminal response.
func JSON(c echo.Context, err *Error) error {
	return c.JSON(err.Status, envelope{Error: err})
}

// HTTPErrorHandler converts errors returned by handlers into the error
// envelope. Unexpected errors are logged with full context and rendered as a
// generic InternalServerError; the underlying message is never echoed to the
// caller.
func HTTPErrorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}

		var appErr *Error
		if !errors.As(err, &appErr) {
			var httpErr *echo.HTTPError
			if errors.As(err, &httpErr) {
				appErr = &Error{
					Code:    codeForStatus(httpErr.Code),
					Message: http.StatusText(httpErr.Code),
					Status:  httpErr.Code,
				}
			} else {
				appErr = Internal(err)
			}
		}

		if appErr.Status >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Request().URL.Path),
				zap.Error(err))
		}

		if writeErr := JSON(c, appErr); writeErr != nil {
			log.Error("failed to write error response", zap.Error(writeErr))
		}
	}
}

func codeForStatus(status int) Code {
	switch status {
	case http.StatusUnauthorized:
		return CodeUnauthorized
	case http.StatusNotFound:
		return CodeNotFound
	case http.StatusForbidden:
		return CodeForbidden
	case http.StatusBadRequest:
		return CodeValidationError
	default:
		return CodeInternalServerError
	}
}
