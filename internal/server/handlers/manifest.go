// Package handlers implements the /api/sync HTTP handlers of spec.md §6,
// binding wire protocol.* types to the C4/C6/C7 engines.
//
// Grounded on internal/server/handlers/blob's per-endpoint handler-struct
// shape in the teacher repo (one small handler type per resource, holding
// the service it delegates to).
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filemirrorsync/filemirrorsync/internal/diffengine"
	"github.com/filemirrorsync/filemirrorsync/internal/model"
	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
)

// ManifestHandler serves POST /api/sync/manifest.
type ManifestHandler struct {
	Diff   *diffengine.Engine
	Policy model.DeletePolicy
}

// NewManifestHandler returns a ManifestHandler.
func NewManifestHandler(diff *diffengine.Engine, policy model.DeletePolicy) *ManifestHandler {
	return &ManifestHandler{Diff: diff, Policy: policy}
}

func (h *ManifestHandler) Handle(ctx *gin.Context) {
	var req protocol.ManifestRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		protocol.AbortWithError(ctx, http.StatusBadRequest, protocol.CodeInvalidRequest, err)
		return
	}

	files := make([]model.FileEntry, len(req.Files))
	for i, f := range req.Files {
		mtime, err := protocol.ParseTime(f.LastWriteUtc)
		if err != nil {
			protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeInvalidRequest), protocol.CodeInvalidRequest, err)
			return
		}
		normalized, err := pathguard.Validate(f.Path)
		if err != nil {
			protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeInvalidPath), protocol.CodeInvalidPath, err)
			return
		}
		entry := model.FileEntry{
			Path:     normalized,
			Size:     f.Size,
			MtimeUTC: mtime,
		}
		if f.SHA256 != nil {
			entry.SHA256 = *f.SHA256
		}
		files[i] = entry
	}

	result, err := h.Diff.Diff(req.DatasetID, req.ClientID, files, h.Policy)
	if err != nil {
		protocol.AbortWithError(ctx, http.StatusInternalServerError, protocol.CodeIOFailure, err)
		return
	}

	resp := protocol.DiffResponse{Delete: result.Delete}
	for _, u := range result.Upload {
		resp.Upload = append(resp.Upload, protocol.UploadInstruction{Path: u.Path, UploadID: u.UploadID})
	}
	if resp.Upload == nil {
		resp.Upload = []protocol.UploadInstruction{}
	}
	if resp.Delete == nil {
		resp.Delete = []string{}
	}

	ctx.PureJSON(http.StatusOK, resp)
}
