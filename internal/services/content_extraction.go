package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"net/url"
	"regexp"
	"strings"
	"time"

	"github.com/yungbote/studyflow-backend/internal/clients/gcp"
	"github.com/yungbote/studyflow-backend/internal/logger"
	"github.com/yungbote/studyflow-backend/internal/normalize"
)

// Extraction is the raw material pulled out of a source before analysis.
type Extraction struct {
	Title string
	Text  string
}

type ContentExtractionService interface {
	Extract(ctx context.Context, src normalize.Source) (*Extraction, error)
}

type contentExtractionService struct {
	log      *logger.Logger
	bucket   gcp.Bucket
	speech   gcp.Speech
	document gcp.Document
	vision   gcp.Vision

	httpClient *http.Client
}

func NewContentExtractionService(
	log *logger.Logger,
	bucket gcp.Bucket,
	speech gcp.Speech,
	document gcp.Document,
	vision gcp.Vision,
) ContentExtractionService {
	return &contentExtractionService{
		log:        log.With("service", "ContentExtractionService"),
		bucket:     bucket,
		speech:     speech,
		document:   document,
		vision:     vision,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *contentExtractionService) Extract(ctx context.Context, src normalize.Source) (*Extraction, error) {
	switch src.Kind {
	case normalize.KindYouTube:
		return s.extractYouTube(ctx, src)
	case normalize.KindPDF:
		return s.extractPDF(ctx, src)
	case normalize.KindAudio:
		return s.extractAudio(ctx, src)
	case normalize.KindImage:
		return s.extractImage(ctx, src)
	case normalize.KindText:
		return s.extractText(ctx, src)
	default:
		return nil, fmt.Errorf("%w: unsupported source kind %q", ErrValidation, src.Kind)
	}
}

func (s *contentExtractionService) download(ctx context.Context, src normalize.Source) ([]byte, error) {
	data, err := s.bucket.Download(ctx, normalize.ObjectPath(src))
	if err != nil {
		return nil, s.classify(fmt.Errorf("download source object: %w", err))
	}
	return data, nil
}

func (s *contentExtractionService) extractPDF(ctx context.Context, src normalize.Source) (*Extraction, error) {
	data, err := s.download(ctx, src)
	if err != nil {
		return nil, err
	}
	text, err := s.document.ExtractPDF(ctx, data)
	if err != nil {
		return nil, s.classify(fmt.Errorf("document text extraction: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: document produced no text", ErrExtraction)
	}
	return &Extraction{Title: titleFromPath(src), Text: text}, nil
}

func (s *contentExtractionService) extractAudio(ctx context.Context, src normalize.Source) (*Extraction, error) {
	data, err := s.download(ctx, src)
	if err != nil {
		return nil, err
	}
	transcript, err := s.speech.TranscribeBytes(ctx, data, normalize.MimeFor(src))
	if err != nil {
		return nil, s.classify(fmt.Errorf("transcribe audio: %w", err))
	}
	if strings.TrimSpace(transcript) == "" {
		return nil, fmt.Errorf("%w: transcription produced no text", ErrExtraction)
	}
	return &Extraction{Title: titleFromPath(src), Text: transcript}, nil
}

func (s *contentExtractionService) extractImage(ctx context.Context, src normalize.Source) (*Extraction, error) {
	data, err := s.download(ctx, src)
	if err != nil {
		return nil, err
	}
	text, err := s.vision.OCRImage(ctx, data)
	if err != nil {
		return nil, s.classify(fmt.Errorf("image OCR: %w", err))
	}
	if strings.TrimSpace(text) == "" {
		return nil, fmt.Errorf("%w: image contained no recognizable text", ErrExtraction)
	}
	return &Extraction{Title: titleFromPath(src), Text: text}, nil
}

func (s *contentExtractionService) extractText(ctx context.Context, src normalize.Source) (*Extraction, error) {
	data, err := s.download(ctx, src)
	if err != nil {
		return nil, err
	}
	text := strings.TrimSpace(string(data))
	if text == "" {
		return nil, fmt.Errorf("%w: text source was empty", ErrExtraction)
	}
	return &Extraction{Title: titleFromPath(src), Text: text}, nil
}

var youtubeCaptionTrackRe = regexp.MustCompile(`"captionTracks":(\[.*?\])`)

// extractYouTube pulls the video title and caption track from the watch page.
// Caption fetch does not require an API key; videos without captions fail
// extraction rather than silently producing an empty record.
func (s *contentExtractionService) extractYouTube(ctx context.Context, src normalize.Source) (*Extraction, error) {
	videoID := strings.TrimPrefix(src.Key, "yt:")
	pageURL := "https://www.youtube.com/watch?v=" + url.QueryEscape(videoID)

	page, err := s.fetch(ctx, pageURL)
	if err != nil {
		return nil, s.classify(fmt.Errorf("fetch video page: %w", err))
	}

	title := youtubeTitle(page)

	m := youtubeCaptionTrackRe.FindSubmatch(page)
	if m == nil {
		return nil, fmt.Errorf("%w: video has no caption tracks", ErrExtraction)
	}
	var tracks []struct {
		BaseURL      string `json:"baseUrl"`
		LanguageCode string `json:"languageCode"`
	}
	if err := json.Unmarshal(m[1], &tracks); err != nil || len(tracks) == 0 {
		return nil, fmt.Errorf("%w: could not parse caption tracks", ErrExtraction)
	}

	trackURL := tracks[0].BaseURL
	for _, t := range tracks {
		if strings.HasPrefix(t.LanguageCode, "en") {
			trackURL = t.BaseURL
			break
		}
	}

	captions, err := s.fetch(ctx, trackURL)
	if err != nil {
		return nil, s.classify(fmt.Errorf("fetch captions: %w", err))
	}
	transcript := stripCaptionMarkup(string(captions))
	if transcript == "" {
		return nil, fmt.Errorf("%w: caption track was empty", ErrExtraction)
	}

	if title == "" {
		title = "YouTube video " + videoID
	}
	return &Extraction{Title: title, Text: transcript}, nil
}

func (s *contentExtractionService) fetch(ctx context.Context, rawURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept-Language", "en-US,en;q=0.9")
	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, &openAIHTTPError{StatusCode: resp.StatusCode, Body: resp.Status}
	}
	return io.ReadAll(io.LimitReader(resp.Body, 16<<20))
}

// classify maps provider failures onto the shared sentinels.
func (s *contentExtractionService) classify(err error) error {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	case gcp.IsRetryable(err):
		return fmt.Errorf("%w: transient provider failure: %v", ErrExtraction, err)
	default:
		return fmt.Errorf("%w: %v", ErrExtraction, err)
	}
}

var (
	youtubeTitleRe = regexp.MustCompile(`<title>(.*?)</title>`)
	captionTagRe   = regexp.MustCompile(`<[^>]+>`)
)

func youtubeTitle(page []byte) string {
	m := youtubeTitleRe.FindSubmatch(page)
	if m == nil {
		return ""
	}
	title := strings.TrimSuffix(string(m[1]), " - YouTube")
	return strings.TrimSpace(html.UnescapeString(title))
}

func stripCaptionMarkup(body string) string {
	text := captionTagRe.ReplaceAllString(body, " ")
	text = html.UnescapeString(text)
	return strings.Join(strings.Fields(text), " ")
}

func titleFromPath(src normalize.Source) string {
	p := normalize.ObjectPath(src)
	if i := strings.LastIndexByte(p, '/'); i >= 0 {
		p = p[i+1:]
	}
	if i := strings.LastIndexByte(p, '.'); i > 0 {
		p = p[:i]
	}
	p = strings.NewReplacer("_", " ", "-", " ").Replace(p)
	p = strings.TrimSpace(p)
	if p == "" {
		return "Untitled"
	}
	return p
}
