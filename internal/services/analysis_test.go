package services

import (
	"context"
	"errors"
	"strings"
	"testing"
)

type fakeOpenAI struct {
	responses map[string]map[string]any // keyed by a substring of the system prompt
	err       error
}

func (f *fakeOpenAI) GenerateJSON(ctx context.Context, system string, user string) (map[string]any, error) {
	if f.err != nil {
		return nil, f.err
	}
	switch {
	case strings.Contains(system, "key_points"):
		return f.responses["summary"], nil
	case strings.Contains(system, "flashcards"):
		return f.responses["flashcards"], nil
	case strings.Contains(system, "quiz"):
		return f.responses["quiz"], nil
	}
	return nil, errors.New("unexpected prompt")
}

func happyResponses() map[string]map[string]any {
	return map[string]map[string]any{
		"summary": {
			"summary":    "An overview of graph theory.",
			"key_points": []any{"vertices", "edges"},
			"sections":   []any{map[string]any{"heading": "Basics", "body": "..."}},
		},
		"flashcards": {
			"flashcards": []any{map[string]any{"front": "What is a vertex?", "back": "A node"}},
		},
		"quiz": {
			"quiz": []any{map[string]any{
				"question": "How many edges in K3?",
				"options":  []any{"1", "2", "3", "4"},
				"answer":   2,
			}},
		},
	}
}

func TestAnalyzeProcessingFeatureFullPayload(t *testing.T) {
	svc := NewAnalysisService(testLogger(t), &fakeOpenAI{responses: happyResponses()})

	out, err := svc.Analyze(context.Background(), "pdf_processing", &Extraction{Title: "Graphs", Text: "graph theory notes"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if out.Summary == "" || len(out.KeyPoints) != 2 {
		t.Fatalf("summary portion missing: %+v", out)
	}
	if len(out.Flashcards) != 1 || len(out.Quiz) != 1 {
		t.Fatalf("processing feature should include flashcards and quiz: %+v", out)
	}
	if out.Title != "Graphs" {
		t.Fatalf("Title=%q", out.Title)
	}
}

func TestAnalyzeFlashcardFeatureSkipsQuiz(t *testing.T) {
	svc := NewAnalysisService(testLogger(t), &fakeOpenAI{responses: happyResponses()})

	out, err := svc.Analyze(context.Background(), "flashcard_generation", &Extraction{Title: "Graphs", Text: "notes"})
	if err != nil {
		t.Fatalf("Analyze: %v", err)
	}
	if len(out.Flashcards) != 1 {
		t.Fatal("flashcard feature produced no flashcards")
	}
	if len(out.Quiz) != 0 {
		t.Fatal("flashcard feature produced a quiz")
	}
}

func TestAnalyzeRejectsEmptyInput(t *testing.T) {
	svc := NewAnalysisService(testLogger(t), &fakeOpenAI{responses: happyResponses()})

	if _, err := svc.Analyze(context.Background(), "pdf_processing", &Extraction{Text: "   "}); !errors.Is(err, ErrValidation) {
		t.Fatalf("err=%v, want ErrValidation", err)
	}
	if _, err := svc.Analyze(context.Background(), "pdf_processing", nil); !errors.Is(err, ErrValidation) {
		t.Fatalf("nil extraction err=%v, want ErrValidation", err)
	}
}

func TestAnalyzeRejectsOutOfRangeQuizAnswer(t *testing.T) {
	responses := happyResponses()
	responses["quiz"] = map[string]any{
		"quiz": []any{map[string]any{
			"question": "Q",
			"options":  []any{"a", "b"},
			"answer":   7,
		}},
	}
	svc := NewAnalysisService(testLogger(t), &fakeOpenAI{responses: responses})

	if _, err := svc.Analyze(context.Background(), "quiz_generation", &Extraction{Title: "T", Text: "notes"}); err == nil {
		t.Fatal("out-of-range quiz answer was accepted")
	}
}

func TestAnalyzeModelFailurePropagates(t *testing.T) {
	svc := NewAnalysisService(testLogger(t), &fakeOpenAI{err: errors.New("rate limited")})

	_, err := svc.Analyze(context.Background(), "pdf_processing", &Extraction{Title: "T", Text: "notes"})
	if !errors.Is(err, ErrExtraction) {
		t.Fatalf("err=%v, want ErrExtraction", err)
	}
}
