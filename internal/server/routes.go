package server

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filemirrorsync/filemirrorsync/internal/authgate"
	"github.com/filemirrorsync/filemirrorsync/internal/deleteengine"
	"github.com/filemirrorsync/filemirrorsync/internal/diffengine"
	"github.com/filemirrorsync/filemirrorsync/internal/mergeengine"
	"github.com/filemirrorsync/filemirrorsync/internal/model"
	"github.com/filemirrorsync/filemirrorsync/internal/server/handlers"
	"github.com/filemirrorsync/filemirrorsync/internal/server/middlewares"
	"github.com/filemirrorsync/filemirrorsync/internal/version"
)

// SetupRoutes wires the gin router, grounded on
// internal/server/routes.go's middleware ordering (logger, recovery,
// gzip, cors) in the teacher repo, plus HSTS and rate-limiting adopted
// from the rest of the teacher's middlewares package.
func SetupRoutes(merge *mergeengine.Engine, del *deleteengine.Engine, diff *diffengine.Engine, gate *authgate.Gate, policy model.DeletePolicy, rateLimit string) http.Handler {
	r := gin.New()

	r.Use(middlewares.Logger())
	r.Use(gin.Recovery())
	r.Use(middlewares.GZIP())
	r.Use(middlewares.CORS())
	r.Use(middlewares.HSTS())
	if rateLimit != "" {
		r.Use(middlewares.RateLimiter(rateLimit))
	}

	manifestH := handlers.NewManifestHandler(diff, policy)
	uploadH := handlers.NewUploadHandler(merge)
	deleteH := handlers.NewDeleteHandler(del, policy)

	r.GET("/healthz", HealthHandler)
	r.GET("/", IndexHandler)

	sync := r.Group("/api/sync")
	sync.Use(middlewares.AuthGate(gate))
	{
		sync.POST("/manifest", manifestH.Handle)
		sync.PUT("/files/:b64path/uploads/:uploadId/chunks/:index", uploadH.PutChunk)
		sync.POST("/files/:b64path/uploads/:uploadId/complete", uploadH.Complete)
		sync.POST("/delete", deleteH.Handle)
	}

	r.NoRoute(func(c *gin.Context) {
		c.PureJSON(http.StatusNotFound, gin.H{"error": "not found"})
	})

	return r.Handler()
}

func IndexHandler(ctx *gin.Context) {
	ctx.String(http.StatusOK, version.DetailedWithApp())
}

func HealthHandler(ctx *gin.Context) {
	ctx.PureJSON(http.StatusOK, gin.H{"status": "ok"})
}

func init() {
	gin.SetMode(gin.ReleaseMode)
}
