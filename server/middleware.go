package server

import (
	"fmt"
	"net/http"
	"runtime"
	"time"

	"github.com/charmbracelet/log"
	"github.com/labstack/echo/v4"
)

func requestLogger(l *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			err := next(c)

			keyvals := []interface{}{
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"method", req.Method,
				"path", req.URL.Path,
				"status", c.Response().Status,
				"latency", time.Since(start),
			}

			if err != nil {
				l.Error("request", append(keyvals, "err", err)...)
			} else {
				l.Debug("request", keyvals...)
			}

			return err
		}
	}
}

func recovery(l *log.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) (err error) {
			defer func() {
				if r := recover(); r != nil {
					var stack [4096]byte
					n := runtime.Stack(stack[:], false)

					l.Error("panic recovered", "panic", fmt.Sprintf("%v", r), "stack", string(stack[:n]))

					err = echo.NewHTTPError(http.StatusInternalServerError, "internal server error")
				}
			}()

			return next(c)
		}
	}
}
