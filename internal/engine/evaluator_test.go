package engine

import (
	"context"
	"errors"
	"testing"
)

type stubScorer struct {
	raw string
	err error
}

func (s *stubScorer) EvaluateAnswer(ctx context.Context, question, expected, answer string) (string, error) {
	return s.raw, s.err
}

func evalWith(t *testing.T, raw string) (int, bool) {
	t.Helper()
	ev := NewEvaluator(&stubScorer{raw: raw})
	result := ev.EvaluateFreeText(context.Background(), "q", "expected", "answer")
	return result.Score, result.IsCorrect
}

func TestEvaluateFreeTextScoreExtraction(t *testing.T) {
	tests := []struct {
		name        string
		raw         string
		wantScore   int
		wantCorrect bool
	}{
		{"slash pattern", "85/100 - solid answer", 85, true},
		{"percent pattern", "You scored 60% on this one.", 60, false},
		{"score prefix", "Score: 92. Excellent recall.", 92, true},
		{"score prefix no colon", "score 75 overall", 75, true},
		{"slash wins over percent", "90/100 even though only 40% of details matched", 90, true},
		{"percent wins over score prefix", "72% correct, score: 10", 72, true},
		{"no pattern defaults to 50", "A reasonable attempt with gaps.", 50, false},
		{"boundary pass", "70/100", 70, true},
		{"boundary fail", "69/100", 69, false},
		{"zero", "0/100, missed the point entirely", 0, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			score, correct := evalWith(t, tt.raw)
			if score != tt.wantScore {
				t.Errorf("score = %d, want %d", score, tt.wantScore)
			}
			if correct != tt.wantCorrect {
				t.Errorf("correct = %v, want %v", correct, tt.wantCorrect)
			}
		})
	}
}

func TestEvaluateFreeTextServiceFailure(t *testing.T) {
	ev := NewEvaluator(&stubScorer{err: errors.New("down")})
	result := ev.EvaluateFreeText(context.Background(), "q", "expected", "answer")

	if result.IsCorrect {
		t.Error("failure must not report correct")
	}
	if result.Score != 0 {
		t.Errorf("score = %d, want 0", result.Score)
	}
	if result.Feedback == "" {
		t.Error("feedback must explain the evaluator was unavailable")
	}
}

func TestEvaluateFreeTextNilScorer(t *testing.T) {
	ev := NewEvaluator(nil)
	result := ev.EvaluateFreeText(context.Background(), "q", "expected", "answer")
	if result.Score != 0 || result.IsCorrect {
		t.Errorf("result = %+v, want unavailable evaluation", result)
	}
}

func TestEvaluateFreeTextFeedbackCarriesCompletion(t *testing.T) {
	ev := NewEvaluator(&stubScorer{raw: "88/100 - strong grasp of the routing layer"})
	result := ev.EvaluateFreeText(context.Background(), "q", "expected", "answer")
	if result.Feedback != "88/100 - strong grasp of the routing layer" {
		t.Errorf("feedback = %q", result.Feedback)
	}
}
