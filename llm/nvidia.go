// NVIDIA Provider implementation using go-openai library.
//
// Information Hiding:
// - Uses OpenAI-compatible API with the NVIDIA integrate base URL
// - NVIDIA serves completions as a stream; Chat collects the chunks
//   into a single response

package llm

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

const nvidiaBaseURL = "https://integrate.api.nvidia.com/v1"

// NvidiaProvider implements the Provider interface for NVIDIA NIM endpoints.
type NvidiaProvider struct {
	client      *openai.Client
	model       string
	maxTokens   int
	temperature float32
}

// NewNvidiaProvider creates a new NVIDIA provider.
func NewNvidiaProvider(apiKey, model string, maxTokens uint32, temperature float32) *NvidiaProvider {
	config := openai.DefaultConfig(apiKey)
	config.BaseURL = nvidiaBaseURL

	return &NvidiaProvider{
		client:      openai.NewClientWithConfig(config),
		model:       model,
		maxTokens:   int(maxTokens),
		temperature: temperature,
	}
}

// Name returns the provider name.
func (p *NvidiaProvider) Name() string {
	return "nvidia"
}

// Model returns the current model.
func (p *NvidiaProvider) Model() string {
	return p.model
}

// Chat sends a chat completion request. The request is issued as a stream
// and the deltas are concatenated into the final content.
func (p *NvidiaProvider) Chat(ctx context.Context, messages []ChatMessage) (LLMResponse, error) {
	req := openai.ChatCompletionRequest{
		Model:       p.model,
		Messages:    convertToOpenAIMessages(messages),
		MaxTokens:   p.maxTokens,
		Temperature: p.temperature,
		Stream:      true,
		StreamOptions: &openai.StreamOptions{
			IncludeUsage: true,
		},
	}

	stream, err := p.client.CreateChatCompletionStream(ctx, req)
	if err != nil {
		return LLMResponse{}, fmt.Errorf("stream creation failed: %w", err)
	}
	defer stream.Close()

	var content strings.Builder
	var usage *TokenUsage
	for {
		response, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return LLMResponse{}, fmt.Errorf("stream recv failed: %w", err)
		}

		// Token usage arrives in the final chunk
		if response.Usage != nil {
			usage = &TokenUsage{
				PromptTokens:     uint32(response.Usage.PromptTokens),
				CompletionTokens: uint32(response.Usage.CompletionTokens),
				TotalTokens:      uint32(response.Usage.TotalTokens),
			}
		}

		if len(response.Choices) > 0 {
			content.WriteString(response.Choices[0].Delta.Content)
		}
	}

	return LLMResponse{Content: content.String(), Usage: usage}, nil
}

// Verify NvidiaProvider implements Provider
var _ Provider = (*NvidiaProvider)(nil)
