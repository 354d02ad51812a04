package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyflow-backend/internal/platform/apierr"
	"github.com/yungbote/studyflow-backend/internal/requestdata"
	"github.com/yungbote/studyflow-backend/internal/services"
)

type AdminHandler struct {
	cache services.ContentCacheService
}

func NewAdminHandler(cache services.ContentCacheService) *AdminHandler {
	return &AdminHandler{cache: cache}
}

// InvalidateCache removes a cached computation so the next ingest of that
// source recomputes. Admin only; entries have no TTL.
func (ah *AdminHandler) InvalidateCache(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil || !rd.IsAdmin {
		RespondError(c, http.StatusForbidden, apierr.CodeValidation, fmt.Errorf("admin access required"))
		return
	}

	var req struct {
		SourceKey string `json:"source_key"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || req.SourceKey == "" {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, fmt.Errorf("missing source_key"))
		return
	}

	removed, err := ah.cache.Invalidate(c.Request.Context(), req.SourceKey)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, gin.H{"removed": removed})
}
