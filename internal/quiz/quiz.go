// Package quiz holds the multiple-choice quiz model and the state machine that plays it.
package quiz

import (
	"errors"
	"fmt"
	"time"
)

// OptionCount is the number of options every question carries.
const OptionCount = 4

// ErrInvalidQuiz is returned by Validate for malformed quiz data.
var ErrInvalidQuiz = errors.New("invalid quiz")

// Question is one multiple-choice question.
type Question struct {
	Question           string   `json:"question"`
	Options            []string `json:"options"`
	CorrectAnswerIndex int      `json:"correctAnswerIndex"`
	Explanation        string   `json:"explanation"`
}

// Data is a generated quiz. It is replaced as a whole, never patched.
type Data struct {
	Title     string     `json:"title"`
	Questions []Question `json:"questions"`
}

// Validate checks the structural invariants of a quiz.
func (d Data) Validate() error {
	if len(d.Questions) == 0 {
		return fmt.Errorf("%w: no questions", ErrInvalidQuiz)
	}
	for i, q := range d.Questions {
		if len(q.Options) != OptionCount {
			return fmt.Errorf("%w: question %d has %d options, want %d", ErrInvalidQuiz, i, len(q.Options), OptionCount)
		}
		if q.CorrectAnswerIndex < 0 || q.CorrectAnswerIndex >= OptionCount {
			return fmt.Errorf("%w: question %d correct index %d out of range", ErrInvalidQuiz, i, q.CorrectAnswerIndex)
		}
	}
	return nil
}

// Summary is the outcome of a finished quiz attempt.
type Summary struct {
	Title string `json:"title"`
	Score int    `json:"score"`
	Total int    `json:"total"`

	CompletedAt time.Time `json:"completedAt"`
}

// Percent returns the score as a percentage of the question count.
func (s Summary) Percent() float64 {
	if s.Total == 0 {
		return 0
	}
	return float64(s.Score) * 100 / float64(s.Total)
}
