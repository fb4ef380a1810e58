// Package middlewares holds gin middleware, grounded on
// internal/server/middlewares's per-concern-per-file layout in the
// teacher repo.
package middlewares

import (
	"bytes"
	"io"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gin-gonic/gin/binding"

	"github.com/filemirrorsync/filemirrorsync/internal/authgate"
	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
)

const headerAPIKey = "X-Api-Key"

// AuthGate enforces spec.md §4.8/§6: every /api/sync endpoint requires a
// valid X-Api-Key, checked against the dataset/client pre-shared keys.
// datasetID/clientID are read from the request body's top-level fields
// where gin's JSON binding hasn't run yet, so this middleware re-reads
// them itself rather than depending on handler-bound structs.
func AuthGate(gate *authgate.Gate) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		presented := ctx.GetHeader(headerAPIKey)

		var body struct {
			DatasetID string `json:"datasetId"`
			ClientID  string `json:"clientId"`
		}

		datasetID := ctx.Query("datasetId")
		clientID := ctx.Query("clientId")
		if datasetID == "" && clientID == "" {
			if err := ctx.ShouldBindBodyWith(&body, binding.JSON); err == nil {
				datasetID, clientID = body.DatasetID, body.ClientID
			}
			// ShouldBindBodyWith consumed the request body; put the cached
			// bytes back so the handler's own JSON binding still reads them.
			if raw, ok := ctx.Get(gin.BodyBytesKey); ok {
				if b, ok := raw.([]byte); ok {
					ctx.Request.Body = io.NopCloser(bytes.NewReader(b))
				}
			}
		}

		if err := gate.Authorize(datasetID, clientID, presented); err != nil {
			protocol.AbortWithError(ctx, http.StatusUnauthorized, protocol.CodeUnauthorized, err)
			return
		}

		ctx.Next()
	}
}
