package server

import (
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v5"
)

// requestLogger tags every request with a short id and logs method, path,
// status and duration once the handler chain completes.
func (s *Server) requestLogger() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c *echo.Context) error {
			start := time.Now()
			requestId := uuid.New().String()[:8]

			err := next(c)
			if err != nil {
				c.Echo().HTTPErrorHandler(c, err)
			}

			status := 0
			if res, resErr := echo.UnwrapResponse(c.Response()); resErr == nil {
				status = res.Status
			}

			s.log.With(
				slog.String("id", requestId),
				slog.String("method", c.Request().Method),
				slog.String("path", c.Request().URL.Path),
				slog.Int("status", status),
				slog.Duration("duration", time.Since(start)),
			).Info("request completed")
			return nil
		}
	}
}
