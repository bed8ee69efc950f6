package embedder

import (
	"context"
	"errors"
	"fmt"

	"github.com/openai/openai-go/v3"
	"github.com/openai/openai-go/v3/option"
)

// DefaultOpenAIModel is used when no embedding model is configured.
const DefaultOpenAIModel = "text-embedding-3-large"

// OpenAIService embeds text with the OpenAI embeddings API.
type OpenAIService struct {
	client openai.Client
	model  string
}

// NewOpenAIService creates a service. An empty baseURL keeps the SDK default.
func NewOpenAIService(apiKey, baseURL, model string) *OpenAIService {
	opts := []option.RequestOption{option.WithAPIKey(apiKey)}
	if baseURL != "" {
		opts = append(opts, option.WithBaseURL(baseURL))
	}
	if model == "" {
		model = DefaultOpenAIModel
	}
	return &OpenAIService{
		client: openai.NewClient(opts...),
		model:  model,
	}
}

// Model returns the configured model name.
func (e *OpenAIService) Model() string { return e.model }

// Embed requests dim-wide vectors for texts.
func (e *OpenAIService) Embed(ctx context.Context, texts []string, dim int) ([][]float32, int, error) {
	if len(texts) == 0 {
		return nil, 0, nil
	}

	params := openai.EmbeddingNewParams{
		Model: openai.EmbeddingModel(e.model),
	}
	if len(texts) == 1 {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfString: openai.String(texts[0]),
		}
	} else {
		params.Input = openai.EmbeddingNewParamsInputUnion{
			OfArrayOfStrings: texts,
		}
	}
	if dim > 0 {
		params.Dimensions = openai.Int(int64(dim))
	}

	resp, err := e.client.Embeddings.New(ctx, params)
	if err != nil {
		if isContextLengthError(err) {
			return nil, 0, fmt.Errorf("%w: %v", ErrContextTooLong, err)
		}
		return nil, 0, fmt.Errorf("openai embed: %w", err)
	}
	if len(resp.Data) != len(texts) {
		return nil, 0, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(resp.Data))
	}

	embeddings := make([][]float32, len(texts))
	for _, data := range resp.Data {
		if data.Index < 0 || int(data.Index) >= len(texts) {
			return nil, 0, fmt.Errorf("embedding index %d out of range", data.Index)
		}
		vector := make([]float32, len(data.Embedding))
		for i, v := range data.Embedding {
			vector[i] = float32(v)
		}
		embeddings[data.Index] = vector
	}
	return embeddings, int(resp.Usage.TotalTokens), nil
}

func isContextLengthError(err error) bool {
	var apiErr *openai.Error
	if !errors.As(err, &apiErr) {
		return false
	}
	return apiErr.Code == "context_length_exceeded" || isContextLengthMessage(apiErr.Message)
}

var _ Service = (*OpenAIService)(nil)
