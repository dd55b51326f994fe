package auth

import (
	"github.com/labstack/echo/v4"
)

// publicPaths bypass ID-token verification. The voice-call webhook is called
// by Retell and authenticates with its own signature. Blob ids are random
// UUIDs handed out only to the uploader.
var publicPaths = map[string]bool{
	"/health":         true,
	"/health/db":      true,
	"/debug-env":      true,
	"/retell-webhook": true,
	"/blobs/:id":      true,
}

// AuthSkipper returns true for requests whose path should skip authentication.
func AuthSkipper(c echo.Context) bool {
	return publicPaths[c.Path()]
}

// IsPublicPath reports whether the given path bypasses authentication.
func IsPublicPath(path string) bool {
	return publicPaths[path]
}
