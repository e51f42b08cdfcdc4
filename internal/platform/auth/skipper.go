package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass authentication, rate limiting and request deadlines.
var publicPaths = map[string]bool{
	"/health":    true,
	"/health/db": true,
}

// AuthSkipper reports whether the matched route is public. Use it as the
// Skipper on JWTConfig.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the raw URL path is public.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
