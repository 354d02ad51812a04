package services

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/yungbote/studyflow-backend/internal/logger"
)

// Analysis is the study payload produced from extracted text.
type Analysis struct {
	Title      string           `json:"title"`
	Summary    string           `json:"summary"`
	KeyPoints  []string         `json:"key_points"`
	Flashcards []Flashcard      `json:"flashcards,omitempty"`
	Quiz       []QuizQuestion   `json:"quiz,omitempty"`
	Sections   []AnalysisDetail `json:"sections,omitempty"`
}

type Flashcard struct {
	Front string `json:"front"`
	Back  string `json:"back"`
}

type QuizQuestion struct {
	Question string   `json:"question"`
	Options  []string `json:"options"`
	Answer   int      `json:"answer"`
}

type AnalysisDetail struct {
	Heading string `json:"heading"`
	Body    string `json:"body"`
}

type AnalysisService interface {
	Analyze(ctx context.Context, feature string, ext *Extraction) (*Analysis, error)
}

type analysisService struct {
	log    *logger.Logger
	openai OpenAIClient
}

func NewAnalysisService(log *logger.Logger, openai OpenAIClient) AnalysisService {
	return &analysisService{
		log:    log.With("service", "AnalysisService"),
		openai: openai,
	}
}

// maxAnalysisInputChars bounds what we send per prompt. Long transcripts get
// truncated rather than split; the summary prompt sees the head of the text.
const maxAnalysisInputChars = 48_000

func (s *analysisService) Analyze(ctx context.Context, feature string, ext *Extraction) (*Analysis, error) {
	if ext == nil || strings.TrimSpace(ext.Text) == "" {
		return nil, fmt.Errorf("%w: nothing to analyze", ErrValidation)
	}
	text := ext.Text
	if len(text) > maxAnalysisInputChars {
		text = text[:maxAnalysisInputChars]
	}

	out := &Analysis{Title: ext.Title}
	var mu sync.Mutex

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		summary, points, sections, err := s.summarize(gctx, text)
		if err != nil {
			return err
		}
		mu.Lock()
		out.Summary, out.KeyPoints, out.Sections = summary, points, sections
		mu.Unlock()
		return nil
	})

	if wantsFlashcards(feature) {
		g.Go(func() error {
			cards, err := s.flashcards(gctx, text)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Flashcards = cards
			mu.Unlock()
			return nil
		})
	}

	if wantsQuiz(feature) {
		g.Go(func() error {
			quiz, err := s.quiz(gctx, text)
			if err != nil {
				return err
			}
			mu.Lock()
			out.Quiz = quiz
			mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrExtraction, err)
	}
	return out, nil
}

func wantsFlashcards(feature string) bool {
	return feature == "flashcard_generation" || strings.HasSuffix(feature, "_processing")
}

func wantsQuiz(feature string) bool {
	return feature == "quiz_generation" || strings.HasSuffix(feature, "_processing")
}

const summarizeSystem = `You are a study assistant. Given source material, respond with a JSON object:
{"summary": string, "key_points": [string], "sections": [{"heading": string, "body": string}]}
The summary is 2-4 paragraphs. Key points are 5-10 short bullets. Sections break the material into 3-6 logical parts.`

func (s *analysisService) summarize(ctx context.Context, text string) (string, []string, []AnalysisDetail, error) {
	raw, err := s.openai.GenerateJSON(ctx, summarizeSystem, text)
	if err != nil {
		return "", nil, nil, err
	}
	var parsed struct {
		Summary   string           `json:"summary"`
		KeyPoints []string         `json:"key_points"`
		Sections  []AnalysisDetail `json:"sections"`
	}
	if err := reparse(raw, &parsed); err != nil {
		return "", nil, nil, err
	}
	if strings.TrimSpace(parsed.Summary) == "" {
		return "", nil, nil, fmt.Errorf("model returned empty summary")
	}
	return parsed.Summary, parsed.KeyPoints, parsed.Sections, nil
}

const flashcardSystem = `You are a study assistant. Given source material, respond with a JSON object:
{"flashcards": [{"front": string, "back": string}]}
Produce 8-15 cards covering the most testable facts.`

func (s *analysisService) flashcards(ctx context.Context, text string) ([]Flashcard, error) {
	raw, err := s.openai.GenerateJSON(ctx, flashcardSystem, text)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Flashcards []Flashcard `json:"flashcards"`
	}
	if err := reparse(raw, &parsed); err != nil {
		return nil, err
	}
	return parsed.Flashcards, nil
}

const quizSystem = `You are a study assistant. Given source material, respond with a JSON object:
{"quiz": [{"question": string, "options": [string], "answer": int}]}
Produce 5-10 multiple choice questions with exactly 4 options each; answer is the zero-based index of the correct option.`

func (s *analysisService) quiz(ctx context.Context, text string) ([]QuizQuestion, error) {
	raw, err := s.openai.GenerateJSON(ctx, quizSystem, text)
	if err != nil {
		return nil, err
	}
	var parsed struct {
		Quiz []QuizQuestion `json:"quiz"`
	}
	if err := reparse(raw, &parsed); err != nil {
		return nil, err
	}
	for i, q := range parsed.Quiz {
		if q.Answer < 0 || q.Answer >= len(q.Options) {
			return nil, fmt.Errorf("quiz question %d has out-of-range answer", i)
		}
	}
	return parsed.Quiz, nil
}

func reparse(raw map[string]any, dst any) error {
	buf, err := json.Marshal(raw)
	if err != nil {
		return err
	}
	return json.Unmarshal(buf, dst)
}
