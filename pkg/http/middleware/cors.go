package middleware

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var corsMethods = strings.Join([]string{
	http.MethodGet,
	http.MethodPost,
	http.MethodOptions,
}, ", ")

var corsHeaders = strings.Join([]string{
	echo.HeaderOrigin,
	echo.HeaderContentType,
	echo.HeaderAccept,
}, ", ")

// CORS allows browser clients from any origin to read the API.
func CORS() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			h := c.Response().Header()
			h.Set("Access-Control-Allow-Origin", "*")
			h.Set("Access-Control-Allow-Methods", corsMethods)
			h.Set("Access-Control-Allow-Headers", corsHeaders)

			if c.Request().Method == http.MethodOptions {
				return c.NoContent(http.StatusNoContent)
			}
			return next(c)
		}
	}
}
