package middlewares

import (
	"github.com/gin-contrib/gzip"
	"github.com/gin-gonic/gin"
)

var excludedPaths = []string{"/healthz"}

// GZIP returns the response compression middleware, excluding the health
// endpoint. Grounded on
// internal/server/middlewares/gzip.go.
func GZIP() gin.HandlerFunc {
	return gzip.Gzip(
		gzip.BestSpeed,
		gzip.WithExcludedPaths(excludedPaths),
	)
}
