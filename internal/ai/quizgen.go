package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/xeipuuv/gojsonschema"

	"github.com/p-n-ai/apprend-go/internal/quiz"
)

// MaxQuizSourceRunes bounds the course text sent for quiz generation.
const MaxQuizSourceRunes = 3000

const quizPrompt = `Génère un quiz de 3 questions (QCM) pour tester la compréhension de ce cours.
Le cours est : %s`

// quizJSONSchema is the contract the provider's JSON text must satisfy.
const quizJSONSchema = `{
  "type": "object",
  "additionalProperties": false,
  "required": ["title", "questions"],
  "properties": {
    "title": {"type": "string"},
    "questions": {
      "type": "array",
      "minItems": 1,
      "items": {
        "type": "object",
        "additionalProperties": false,
        "required": ["question", "options", "correctAnswerIndex", "explanation"],
        "properties": {
          "question": {"type": "string"},
          "options": {"type": "array", "minItems": 4, "maxItems": 4, "items": {"type": "string"}},
          "correctAnswerIndex": {"type": "integer", "minimum": 0, "maximum": 3},
          "explanation": {"type": "string"}
        }
      }
    }
  }
}`

var quizSchema = mustSchema(quizJSONSchema)

func mustSchema(s string) *gojsonschema.Schema {
	schema, err := gojsonschema.NewSchema(gojsonschema.NewStringLoader(s))
	if err != nil {
		panic(fmt.Sprintf("invalid quiz schema: %v", err))
	}
	return schema
}

// quizResponseSchema is the same shape in the Gemini responseSchema dialect.
func quizResponseSchema() map[string]any {
	return map[string]any{
		"type": "OBJECT",
		"properties": map[string]any{
			"title": map[string]any{"type": "STRING", "description": "Titre du quiz"},
			"questions": map[string]any{
				"type": "ARRAY",
				"items": map[string]any{
					"type": "OBJECT",
					"properties": map[string]any{
						"question": map[string]any{"type": "STRING"},
						"options": map[string]any{
							"type":        "ARRAY",
							"items":       map[string]any{"type": "STRING"},
							"description": "4 options possibles",
						},
						"correctAnswerIndex": map[string]any{"type": "INTEGER", "description": "Index de la bonne réponse (0-3)"},
						"explanation":        map[string]any{"type": "STRING", "description": "Courte explication de la réponse"},
					},
					"required":         []string{"question", "options", "correctAnswerIndex", "explanation"},
					"propertyOrdering": []string{"question", "options", "correctAnswerIndex", "explanation"},
				},
			},
		},
		"required":         []string{"title", "questions"},
		"propertyOrdering": []string{"title", "questions"},
	}
}

// GenerateQuiz asks the provider for a multiple-choice quiz on the course content.
// The result is either fully valid or an error; there are no partial quizzes.
func (g *Gateway) GenerateQuiz(ctx context.Context, courseContent string) (quiz.Data, error) {
	user := UserFromContext(ctx)
	if err := g.checkBudget(ctx, user); err != nil {
		return quiz.Data{}, err
	}

	callCtx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	resp, err := g.provider.Complete(callCtx, CompletionRequest{
		Messages: []Message{
			{Role: RoleUser, Content: fmt.Sprintf(quizPrompt, TruncateRunes(courseContent, MaxQuizSourceRunes))},
		},
		Model:            g.model,
		Temperature:      quizTemperature,
		Task:             TaskQuizGeneration,
		ResponseMIMEType: "application/json",
		ResponseSchema:   quizResponseSchema(),
	})
	if errors.Is(err, ErrEmptyResponse) {
		return quiz.Data{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if err != nil {
		return quiz.Data{}, classify(callCtx, g.timeout, err)
	}
	g.recordUsage(ctx, user, resp.TotalTokens())

	data, err := DecodeQuiz(resp.Content)
	if err != nil {
		slog.Warn("quiz response rejected", "error", err, "model", resp.Model)
		return quiz.Data{}, err
	}
	return data, nil
}

// DecodeQuiz validates provider JSON text against the quiz schema and decodes it.
func DecodeQuiz(text string) (quiz.Data, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return quiz.Data{}, fmt.Errorf("%w: %w", ErrSchema, ErrEmptyResponse)
	}

	result, err := quizSchema.Validate(gojsonschema.NewStringLoader(text))
	if err != nil {
		return quiz.Data{}, fmt.Errorf("%w: response is not JSON: %w", ErrSchema, err)
	}
	if !result.Valid() {
		problems := make([]string, 0, len(result.Errors()))
		for _, e := range result.Errors() {
			problems = append(problems, e.String())
		}
		return quiz.Data{}, fmt.Errorf("%w: %s", ErrSchema, strings.Join(problems, "; "))
	}

	var data quiz.Data
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		return quiz.Data{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	if err := data.Validate(); err != nil {
		return quiz.Data{}, fmt.Errorf("%w: %w", ErrSchema, err)
	}
	return data, nil
}

// TruncateRunes returns at most n runes of s.
func TruncateRunes(s string, n int) string {
	if n < 0 {
		return ""
	}
	i := 0
	for pos := range s {
		if i == n {
			return s[:pos]
		}
		i++
	}
	return s
}
