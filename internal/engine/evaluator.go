package engine

import (
	"context"
	"log/slog"
	"regexp"
	"strconv"

	"github.com/terra-clan/onboard-engine/internal/models"
)

// AnswerScorer is the generative surface used for qualitative scoring
// of free-text answers
type AnswerScorer interface {
	EvaluateAnswer(ctx context.Context, question, expected, answer string) (string, error)
}

// Evaluator decides correctness for free-text answers. Quiz selections
// are exact-match and handled by the engine directly; this component
// only covers the qualitative path.
type Evaluator struct {
	scorer AnswerScorer
}

// NewEvaluator creates an evaluator. scorer may be nil, in which case
// every evaluation reports the service as unavailable.
func NewEvaluator(scorer AnswerScorer) *Evaluator {
	return &Evaluator{scorer: scorer}
}

const passingScore = 70

// Score extraction patterns, in priority order: "N/100", "N%",
// "score: N". The first matching pattern wins.
var scorePatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d{1,3})\s*/\s*100`),
	regexp.MustCompile(`(\d{1,3})\s*%`),
	regexp.MustCompile(`(?i)score:?\s*(\d{1,3})`),
}

// EvaluateFreeText scores a free-text answer via the generative
// service. A service failure is local: the evaluation reports score 0
// and does not block task completion; the caller records whatever
// resulted.
func (e *Evaluator) EvaluateFreeText(ctx context.Context, question, expected, answer string) models.Evaluation {
	if e.scorer == nil {
		return unavailableEvaluation()
	}

	raw, err := e.scorer.EvaluateAnswer(ctx, question, expected, answer)
	if err != nil {
		slog.Warn("free-text evaluation failed", "error", err)
		return unavailableEvaluation()
	}

	score := extractScore(raw)
	return models.Evaluation{
		IsCorrect: score >= passingScore,
		Feedback:  raw,
		Score:     score,
	}
}

func unavailableEvaluation() models.Evaluation {
	return models.Evaluation{
		IsCorrect: false,
		Feedback:  "The answer evaluator is temporarily unavailable. Your answer was recorded; feel free to move on.",
		Score:     0,
	}
}

// extractScore pulls a 0-100 integer out of the completion text,
// defaulting to 50 when no pattern matches
func extractScore(raw string) int {
	for _, pattern := range scorePatterns {
		m := pattern.FindStringSubmatch(raw)
		if m == nil {
			continue
		}
		n, err := strconv.Atoi(m[1])
		if err != nil {
			continue
		}
		if n < 0 {
			n = 0
		}
		if n > 100 {
			n = 100
		}
		return n
	}
	return 50
}
