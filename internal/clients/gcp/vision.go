package gcp

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	vision "cloud.google.com/go/vision/apiv1"

	"github.com/yungbote/studyflow-backend/internal/logger"
)

type Vision interface {
	OCRImage(ctx context.Context, data []byte) (string, error)
	Close() error
}

type visionService struct {
	log    *logger.Logger
	client *vision.ImageAnnotatorClient
}

func NewVision(log *logger.Logger) (Vision, error) {
	if log == nil {
		return nil, fmt.Errorf("logger required")
	}
	client, err := vision.NewImageAnnotatorClient(context.Background(), ClientOptionsFromEnv()...)
	if err != nil {
		return nil, fmt.Errorf("vision client: %w", err)
	}
	return &visionService{
		log:    log.With("service", "gcp.Vision"),
		client: client,
	}, nil
}

func (v *visionService) OCRImage(ctx context.Context, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("no image data")
	}

	img, err := vision.NewImageFromReader(bytes.NewReader(data))
	if err != nil {
		return "", fmt.Errorf("decode image: %w", err)
	}
	annotation, err := v.client.DetectDocumentText(ctx, img, nil)
	if err != nil {
		return "", fmt.Errorf("vision ocr: %w", err)
	}
	if annotation == nil {
		return "", nil
	}
	return strings.TrimSpace(annotation.GetText()), nil
}

func (v *visionService) Close() error {
	return v.client.Close()
}
