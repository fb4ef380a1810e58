package handlers

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/filemirrorsync/filemirrorsync/internal/mergeengine"
	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
	"github.com/filemirrorsync/filemirrorsync/internal/uploadsession"
)

// UploadHandler serves the chunk PUT and complete POST endpoints of
// spec.md §6.
type UploadHandler struct {
	Merge *mergeengine.Engine
}

// NewUploadHandler returns an UploadHandler.
func NewUploadHandler(merge *mergeengine.Engine) *UploadHandler {
	return &UploadHandler{Merge: merge}
}

// PutChunk handles PUT /api/sync/files/{b64path}/uploads/{uploadId}/chunks/{index}.
func (h *UploadHandler) PutChunk(ctx *gin.Context) {
	relPath, ok := decodePathParam(ctx)
	if !ok {
		return
	}
	uploadID := ctx.Param("uploadId")
	index, ok := parseIndexParam(ctx)
	if !ok {
		return
	}

	datasetID := ctx.Query("datasetId")
	clientID := ctx.Query("clientId")

	if err := h.Merge.SaveChunk(datasetID, uploadID, clientID, relPath, index, ctx.Request.Body); err != nil {
		abortMergeError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

// Complete handles POST /api/sync/files/{b64path}/uploads/{uploadId}/complete.
func (h *UploadHandler) Complete(ctx *gin.Context) {
	if _, ok := decodePathParam(ctx); !ok {
		return
	}
	uploadID := ctx.Param("uploadId")

	var req protocol.CompleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		protocol.AbortWithError(ctx, http.StatusBadRequest, protocol.CodeInvalidRequest, err)
		return
	}

	lastWrite, err := protocol.ParseTime(req.LastWriteUtc)
	if err != nil {
		protocol.AbortWithError(ctx, http.StatusBadRequest, protocol.CodeInvalidRequest, err)
		return
	}

	sha := ""
	if req.SHA256 != nil {
		sha = *req.SHA256
	}

	err = h.Merge.CompleteUpload(ctx.Request.Context(), uploadID, mergeengine.CompleteRequest{
		DatasetID:    req.DatasetID,
		ClientID:     req.ClientID,
		ExpectedSize: req.ExpectedSize,
		SHA256:       sha,
		ChunkCount:   req.ChunkCount,
		LastWriteUtc: lastWrite,
	})
	if err != nil {
		abortMergeError(ctx, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func decodePathParam(ctx *gin.Context) (string, bool) {
	token := ctx.Param("b64path")
	relPath, err := pathguard.DecodeToken(token)
	if err != nil {
		protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeInvalidPath), protocol.CodeInvalidPath, err)
		return "", false
	}
	return relPath, true
}

func parseIndexParam(ctx *gin.Context) (int, bool) {
	index, err := strconv.Atoi(ctx.Param("index"))
	if err != nil || index < 0 {
		protocol.AbortWithError(ctx, http.StatusBadRequest, protocol.CodeInvalidRequest, errors.New("invalid chunk index"))
		return 0, false
	}
	return index, true
}

func abortMergeError(ctx *gin.Context, err error) {
	switch {
	case errors.Is(err, uploadsession.ErrNotFound):
		protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeSessionNotFound), protocol.CodeSessionNotFound, err)
	case errors.Is(err, uploadsession.ErrMismatch), errors.Is(err, mergeengine.ErrSessionMismatch):
		protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeSessionMismatch), protocol.CodeSessionMismatch, err)
	case errors.Is(err, mergeengine.ErrChunkCountMismatch):
		protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeChunkCountMismatch), protocol.CodeChunkCountMismatch, err)
	case errors.Is(err, mergeengine.ErrSizeMismatch):
		protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeSizeMismatch), protocol.CodeSizeMismatch, err)
	case errors.Is(err, mergeengine.ErrHashMismatch):
		protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeHashMismatch), protocol.CodeHashMismatch, err)
	case errors.Is(err, pathguard.ErrInvalidPath):
		protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeInvalidPath), protocol.CodeInvalidPath, err)
	default:
		protocol.AbortWithError(ctx, http.StatusInternalServerError, protocol.CodeIOFailure, err)
	}
}
