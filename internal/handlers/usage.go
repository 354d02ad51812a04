package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyflow-backend/internal/platform/apierr"
	"github.com/yungbote/studyflow-backend/internal/requestdata"
	"github.com/yungbote/studyflow-backend/internal/services"
)

type UsageHandler struct {
	gate    services.PermissionGateService
	catalog services.PlanCatalogService
}

func NewUsageHandler(gate services.PermissionGateService, catalog services.PlanCatalogService) *UsageHandler {
	return &UsageHandler{gate: gate, catalog: catalog}
}

// GetFeatureUsage answers "can I use this feature right now" without
// consuming any allowance.
func (uh *UsageHandler) GetFeatureUsage(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, apierr.CodeValidation, fmt.Errorf("not authenticated"))
		return
	}
	feature := c.Param("feature")

	decision, err := uh.gate.CheckFeatureUsage(c.Request.Context(), rd.UserID, rd.PlanType, feature)
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, decision)
}

func (uh *UsageHandler) ListFeatures(c *gin.Context) {
	RespondOK(c, gin.H{"features": uh.catalog.Features()})
}
