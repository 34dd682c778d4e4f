package middleware

import (
	"fmt"
	"net/http"
	"runtime/debug"

	"github.com/labstack/echo/v4"

	applogger "NeuralTrade/pkg/logger"
)

// panicBody mirrors http.APIResponse; this package cannot import pkg/http.
type panicBody struct {
	Status  int          `json:"status"`
	Message string       `json:"message"`
	Errors  []panicError `json:"errors"`
}

type panicError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Recover turns a handler panic into a 500 and logs the stack.
func Recover(l *applogger.Logger) echo.MiddlewareFunc {
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
				l.Error("http handler panic",
					applogger.String("method", c.Request().Method),
					applogger.String("route", c.Path()),
					applogger.String("panic", fmt.Sprint(r)),
					applogger.String("stack", string(debug.Stack())),
				)
				if c.Response().Committed {
					return
				}
				err = c.JSON(http.StatusInternalServerError, panicBody{
					Status:  http.StatusInternalServerError,
					Message: http.StatusText(http.StatusInternalServerError),
					Errors:  []panicError{{Code: "ERR_INTERNAL", Message: "unexpected server error"}},
				})
			}()
			return next(c)
		}
	}
}
