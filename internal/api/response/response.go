// Package response writes plain echo responses in the same {success, error}
// shape the huma operations use.
package response

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog/log"
)

// Body mirrors handlers.DataBody and handlers.APIError on the wire. Error is
// always a plain message.
type Body struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

// Success writes a {success: true, data} body.
func Success(c echo.Context, status int, data any) error {
	return c.JSON(status, Body{Success: true, Data: data})
}

// Error writes a {success: false, error} body.
func Error(c echo.Context, status int, message string) error {
	return c.JSON(status, Body{Error: message})
}

// ErrorHandler replaces echo's default handler for routes outside huma, such
// as unknown paths and panics caught by the recover middleware.
func ErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}
	status := http.StatusInternalServerError
	message := http.StatusText(status)
	var he *echo.HTTPError
	if errors.As(err, &he) {
		status = he.Code
		if m, ok := he.Message.(string); ok {
			message = m
		}
	} else {
		log.Error().Err(err).Str("path", c.Path()).Msg("request failed")
	}
	if werr := Error(c, status, message); werr != nil {
		log.Debug().Err(werr).Msg("write error response")
	}
}
