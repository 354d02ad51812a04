package gcp

import (
	"context"
	"fmt"
	"os"
	"strings"

	documentai "cloud.google.com/go/documentai/apiv1"
	"cloud.google.com/go/documentai/apiv1/documentaipb"

	"github.com/yungbote/studyflow-backend/internal/logger"
)

type Document interface {
	ExtractPDF(ctx context.Context, data []byte) (string, error)
	Close() error
}

type documentService struct {
	log       *logger.Logger
	client    *documentai.DocumentProcessorClient
	processor string
}

func NewDocument(log *logger.Logger) (Document, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	project := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROJECT_ID"))
	location := strings.TrimSpace(os.Getenv("DOCUMENTAI_LOCATION"))
	processorID := strings.TrimSpace(os.Getenv("DOCUMENTAI_PROCESSOR_ID"))
	if project == "" || processorID == "" {
		return nil, fmt.Errorf("missing DOCUMENTAI_PROJECT_ID or DOCUMENTAI_PROCESSOR_ID")
	}
	if location == "" {
		location = "us"
	}

	client, err := documentai.NewDocumentProcessorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("documentai client: %w", err)
	}
	return &documentService{
		log:       log.With("service", "gcp.Document"),
		client:    client,
		processor: fmt.Sprintf("projects/%s/locations/%s/processors/%s", project, location, processorID),
	}, nil
}

func (d *documentService) ExtractPDF(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no pdf data")
	}

	resp, err := d.client.ProcessDocument(ctx, &documentaipb.ProcessRequest{
		Name: d.processor,
		Source: &documentaipb.ProcessRequest_RawDocument{
			RawDocument: &documentaipb.RawDocument{
				Content:  data,
				MimeType: "application/pdf",
			},
		},
	})
	if err != nil {
		return "", fmt.Errorf("documentai process: %w", err)
	}
	return strings.TrimSpace(resp.GetDocument().GetText()), nil
}

func (d *documentService) Close() error {
	return d.client.Close()
}
