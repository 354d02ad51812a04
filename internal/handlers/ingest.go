package handlers

import (
	"fmt"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/yungbote/studyflow-backend/internal/platform/apierr"
	"github.com/yungbote/studyflow-backend/internal/requestdata"
	"github.com/yungbote/studyflow-backend/internal/services"
)

type IngestHandler struct {
	ingestion services.IngestionService
}

func NewIngestHandler(ingestion services.IngestionService) *IngestHandler {
	return &IngestHandler{ingestion: ingestion}
}

func (ih *IngestHandler) Ingest(c *gin.Context) {
	rd := requestdata.GetRequestData(c.Request.Context())
	if rd == nil {
		RespondError(c, http.StatusUnauthorized, apierr.CodeValidation, fmt.Errorf("not authenticated"))
		return
	}

	var req struct {
		Feature   string `json:"feature"`
		SourceRef string `json:"source_ref"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		RespondError(c, http.StatusBadRequest, apierr.CodeValidation, err)
		return
	}

	result, err := ih.ingestion.Ingest(c.Request.Context(), services.IngestRequest{
		UserID:    rd.UserID,
		PlanType:  rd.PlanType,
		Feature:   req.Feature,
		SourceRef: req.SourceRef,
	})
	if err != nil {
		RespondServiceError(c, err)
		return
	}
	RespondOK(c, result)
}
