package coach

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"

	"focusgarden/backend/internal/model"
)

var ErrNoChoicesReturned = errors.New("no choices returned")

const systemPrompt = "You are a friendly focus coach. Given a finished focus session, reply with two or three short sentences of encouragement and one concrete suggestion. Do not use lists or markdown."

// chatService is the slice of the OpenAI client the coach needs.
type chatService interface {
	Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error)
}

type completionsService struct {
	svc *openai.ChatCompletionService
}

func (c completionsService) Create(ctx context.Context, params openai.ChatCompletionNewParams) (openai.ChatCompletion, error) {
	resp, err := c.svc.New(ctx, params)
	if err != nil {
		return openai.ChatCompletion{}, err
	}
	return *resp, nil
}

type OpenAICoach struct {
	chat     chatService
	model    string
	fallback StaticCoach
}

func NewOpenAICoach(apiKey, modelName string) (*OpenAICoach, error) {
	if apiKey == "" {
		return nil, fmt.Errorf("OPENAI_API_KEY not set")
	}
	if modelName == "" {
		modelName = string(openai.ChatModelGPT4oMini)
	}
	client := openai.NewClient(option.WithAPIKey(apiKey))
	return &OpenAICoach{
		chat:  completionsService{svc: &client.Chat.Completions},
		model: modelName,
	}, nil
}

// Insight asks the model for a note. API failures degrade to the static text.
func (c *OpenAICoach) Insight(ctx context.Context, record model.SessionRecord, recent []model.SessionRecord) (Insight, error) {
	text, err := c.generate(ctx, userPrompt(record, recent))
	if err != nil {
		slog.Warn("OpenAICoach.Insight: falling back to static insight", "sessionID", record.SessionID, "error", err)
		return c.fallback.Insight(ctx, record, recent)
	}
	return Insight{SessionID: record.SessionID, Text: text, Source: SourceOpenAI}, nil
}

func (c *OpenAICoach) generate(ctx context.Context, prompt string) (string, error) {
	params := openai.ChatCompletionNewParams{
		Model: openai.ChatModel(c.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(systemPrompt),
			openai.UserMessage(prompt),
		},
		Temperature: openai.Float(0.4),
	}

	resp, err := c.chat.Create(ctx, params)
	if err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoicesReturned
	}
	text := strings.TrimSpace(resp.Choices[0].Message.Content)
	if text == "" {
		return "", ErrNoChoicesReturned
	}
	return text, nil
}

func userPrompt(record model.SessionRecord, recent []model.SessionRecord) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Session finished at %s.\n", record.CompletedAt.Format("2006-01-02 15:04"))
	fmt.Fprintf(&b, "Focus time: %s. Total time: %s.\n", humanSeconds(record.FocusSeconds), humanSeconds(record.DurationSeconds))
	for _, step := range record.StepsSummary {
		fmt.Fprintf(&b, "Step %s: %d/%d units.\n", step.StepID, step.CompletedUnits, step.TotalUnits)
	}
	if len(recent) > 0 {
		b.WriteString("Previous sessions (focus time):")
		for _, r := range recent {
			fmt.Fprintf(&b, " %s", humanSeconds(r.FocusSeconds))
		}
		b.WriteString("\n")
	}
	return b.String()
}
