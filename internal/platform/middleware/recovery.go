package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/ehr/medledger/internal/platform/apperror"
	"github.com/ehr/medledger/internal/platform/auth"
)

// Recovery turns a panic in a handler into a 500 with the standard error
// body. A panic mid-request never leaves a stock adjustment committed: the
// transaction it ran in is rolled back by its deferred Rollback.
func Recovery(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				r := recover()
				if r == nil {
					return
				}
				if r == http.ErrAbortHandler {
					panic(r)
				}

				ev := logger.Error().
					Str("request_id", fmt.Sprint(c.Get("request_id"))).
					Str("method", c.Request().Method).
					Str("path", c.Path()).
					Str("user_id", auth.UserIDFromContext(c.Request().Context())).
					Bytes("stack", debug.Stack())
				if e, ok := r.(error); ok {
					ev = ev.Err(e)
				} else {
					ev = ev.Interface("panic", r)
				}
				ev.Msg("panic recovered")

				err = echo.NewHTTPError(http.StatusInternalServerError, apperror.Response{
					Code:    "internal",
					Message: "internal server error",
				})
			}()
			return next(c)
		}
	}
}
