package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/filemirrorsync/filemirrorsync/internal/deleteengine"
	"github.com/filemirrorsync/filemirrorsync/internal/model"
	"github.com/filemirrorsync/filemirrorsync/internal/pathguard"
	"github.com/filemirrorsync/filemirrorsync/internal/protocol"
)

// DeleteHandler serves POST /api/sync/delete.
type DeleteHandler struct {
	Delete *deleteengine.Engine
	Policy model.DeletePolicy
}

// NewDeleteHandler returns a DeleteHandler.
func NewDeleteHandler(delete *deleteengine.Engine, policy model.DeletePolicy) *DeleteHandler {
	return &DeleteHandler{Delete: delete, Policy: policy}
}

func (h *DeleteHandler) Handle(ctx *gin.Context) {
	var req protocol.DeleteRequest
	if err := ctx.ShouldBindJSON(&req); err != nil {
		protocol.AbortWithError(ctx, http.StatusBadRequest, protocol.CodeInvalidRequest, err)
		return
	}

	if h.Policy == model.DeletePolicyLwwDelete && req.DeletedAtUtc == nil {
		protocol.AbortWithError(ctx, http.StatusBadRequest, protocol.CodeInvalidRequest, errors.New("deletedAtUtc is required under LwwDelete"))
		return
	}

	deletedAtUtc := timeZeroIfNil(req.DeletedAtUtc)
	parsed, err := protocol.ParseTime(deletedAtUtc)
	if err != nil {
		protocol.AbortWithError(ctx, http.StatusBadRequest, protocol.CodeInvalidRequest, err)
		return
	}

	if _, err := h.Delete.Delete(req.DatasetID, req.Paths, parsed, h.Policy); err != nil {
		if errors.Is(err, pathguard.ErrInvalidPath) {
			protocol.AbortWithError(ctx, protocol.StatusForCode(protocol.CodeInvalidPath), protocol.CodeInvalidPath, err)
			return
		}
		protocol.AbortWithError(ctx, http.StatusInternalServerError, protocol.CodeIOFailure, err)
		return
	}

	ctx.Status(http.StatusNoContent)
}

func timeZeroIfNil(s *string) string {
	if s == nil {
		return "1970-01-01T00:00:00Z"
	}
	return *s
}
