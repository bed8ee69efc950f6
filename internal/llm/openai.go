package llm

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
	"github.com/openai/openai-go/v3/shared"
)

// DefaultOpenAIModel is used when no chat model is configured.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIChat calls the OpenAI chat completions API.
type OpenAIChat struct {
	client openai.Client
	model  string
}

// NewOpenAIChat creates a chat client. An empty baseURL keeps the SDK
// default, so OpenAI-compatible gateways can be used.
func NewOpenAIChat(apiKey, baseURL, model string) *OpenAIChat {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIChat{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Model returns the configured model name.
func (c *OpenAIChat) Model() string { return c.model }

func (c *OpenAIChat) params(messages []Message) openai.ChatCompletionNewParams {
	msgs := make([]openai.ChatCompletionMessageParamUnion, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case RoleSystem:
			msgs = append(msgs, openai.SystemMessage(m.Content))
		case RoleAssistant:
			msgs = append(msgs, openai.AssistantMessage(m.Content))
		default:
			msgs = append(msgs, openai.UserMessage(m.Content))
		}
	}
	return openai.ChatCompletionNewParams{
		Model:    shared.ChatModel(c.model),
		Messages: msgs,
	}
}

// Complete returns the first choice of a non-streaming completion.
func (c *OpenAIChat) Complete(ctx context.Context, messages []Message, jsonMode bool) (string, int, error) {
	params := c.params(messages)
	if jsonMode {
		params.ResponseFormat = openai.ChatCompletionNewParamsResponseFormatUnion{
			OfJSONObject: &shared.ResponseFormatJSONObjectParam{
				Type: "json_object",
			},
		}
	}

	completion, err := c.client.Chat.Completions.New(ctx, params)
	if err != nil {
		return "", 0, fmt.Errorf("openai chat: %w", describeAPIError(err))
	}
	if len(completion.Choices) == 0 {
		return "", 0, fmt.Errorf("no completion choices returned")
	}
	return completion.Choices[0].Message.Content, int(completion.Usage.TotalTokens), nil
}

// Stream copies streamed content deltas to w. Usage is requested in the
// final chunk.
func (c *OpenAIChat) Stream(ctx context.Context, messages []Message, w io.Writer) (int, error) {
	params := c.params(messages)
	params.StreamOptions = openai.ChatCompletionStreamOptionsParam{
		IncludeUsage: openai.Bool(true),
	}

	stream := c.client.Chat.Completions.NewStreaming(ctx, params)
	defer stream.Close()

	tokens := 0
	for stream.Next() {
		chunk := stream.Current()
		if len(chunk.Choices) > 0 && chunk.Choices[0].Delta.Content != "" {
			if _, err := io.WriteString(w, chunk.Choices[0].Delta.Content); err != nil {
				return tokens, err
			}
		}
		if chunk.Usage.TotalTokens > 0 {
			tokens = int(chunk.Usage.TotalTokens)
		}
	}
	if err := stream.Err(); err != nil {
		return tokens, fmt.Errorf("openai chat stream: %w", describeAPIError(err))
	}
	return tokens, nil
}

// describeAPIError prefixes API errors with their HTTP status.
func describeAPIError(err error) error {
	var apiErr *openai.Error
	if errors.As(err, &apiErr) {
		return fmt.Errorf("status %d: %w", apiErr.StatusCode, err)
	}
	return err
}

var _ ChatModel = (*OpenAIChat)(nil)
