package middlewares

import (
	"github.com/gin-contrib/secure"
	"github.com/gin-gonic/gin"
)

// HSTS returns the security-headers middleware, grounded on
// internal/server/middlewares/hsts.go.
func HSTS() gin.HandlerFunc {
	return secure.New(secure.Config{
		SSLRedirect:          false,
		STSSeconds:           31536000,
		STSIncludeSubdomains: true,
		FrameDeny:            true,
		ContentTypeNosniff:   true,
		BrowserXssFilter:     true,
		IENoOpen:             true,
	})
}
