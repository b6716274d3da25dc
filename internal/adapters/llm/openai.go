// Package llm provides the chat-completion adapter.
// Clean Architecture: Adapter implementing ports.LLMService.
// Any OpenAI-compatible endpoint works; Groq is the default.
package llm

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/openai/openai-go/shared"

	"github.com/0xcro3dile/policyrag-go/internal/domain/entities"
	"github.com/0xcro3dile/policyrag-go/internal/domain/ports"
)

const (
	DefaultBaseURL = "https://api.groq.com/openai/v1/"
	DefaultModel   = "llama-3.1-8b-instant"
	DefaultTimeout = 30 * time.Second
)

// ErrNoChoices is returned when the endpoint answers without any choice.
var ErrNoChoices = errors.New("completion returned no choices")

// Options configures the adapter.
type Options struct {
	APIKey     string
	BaseURL    string
	Model      string
	Timeout    time.Duration
	MaxRetries int
	HTTPClient *http.Client
}

// OpenAIAdapter implements ports.LLMService using openai-go.
type OpenAIAdapter struct {
	client     openai.Client
	model      string
	configured bool
}

// NewOpenAIAdapter creates an adapter. Empty fields fall back to the Groq defaults.
func NewOpenAIAdapter(o Options) *OpenAIAdapter {
	if o.BaseURL == "" {
		o.BaseURL = DefaultBaseURL
	}
	if !strings.HasSuffix(o.BaseURL, "/") {
		o.BaseURL += "/"
	}
	if o.Model == "" {
		o.Model = DefaultModel
	}
	if o.Timeout <= 0 {
		o.Timeout = DefaultTimeout
	}
	if o.HTTPClient == nil {
		o.HTTPClient = &http.Client{Timeout: o.Timeout}
	}

	clientOpts := []option.RequestOption{
		option.WithBaseURL(o.BaseURL),
		option.WithHTTPClient(o.HTTPClient),
		option.WithMaxRetries(o.MaxRetries),
	}
	if o.APIKey != "" {
		clientOpts = append(clientOpts, option.WithAPIKey(o.APIKey))
	}

	return &OpenAIAdapter{
		client:     openai.NewClient(clientOpts...),
		model:      o.Model,
		configured: o.APIKey != "",
	}
}

// Configured reports whether an API key was supplied.
func (a *OpenAIAdapter) Configured() bool {
	return a.configured
}

// Model returns the model id sent with every request.
func (a *OpenAIAdapter) Model() string {
	return a.model
}

// Complete returns the text of the first choice.
func (a *OpenAIAdapter) Complete(ctx context.Context, messages []entities.ChatMessage, opts ports.CompletionOptions) (string, error) {
	resp, err := a.client.Chat.Completions.New(ctx, a.params(messages, opts))
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrNoChoices
	}
	return resp.Choices[0].Message.Content, nil
}

// CompleteStream streams the first choice's content deltas.
// The channel always ends with a Done token, carrying the error if the stream failed.
func (a *OpenAIAdapter) CompleteStream(ctx context.Context, messages []entities.ChatMessage, opts ports.CompletionOptions) (<-chan ports.StreamToken, error) {
	stream := a.client.Chat.Completions.NewStreaming(ctx, a.params(messages, opts))
	if err := stream.Err(); err != nil {
		stream.Close()
		return nil, fmt.Errorf("chat completion stream: %w", err)
	}

	ch := make(chan ports.StreamToken, 100)

	go func() {
		defer close(ch)
		defer stream.Close()

		for stream.Next() {
			chunk := stream.Current()
			if len(chunk.Choices) == 0 || chunk.Choices[0].Delta.Content == "" {
				continue
			}
			select {
			case ch <- ports.StreamToken{Content: chunk.Choices[0].Delta.Content}:
			case <-ctx.Done():
				ch <- ports.StreamToken{Done: true, Error: ctx.Err()}
				return
			}
		}

		final := ports.StreamToken{Done: true}
		if err := stream.Err(); err != nil {
			final.Error = fmt.Errorf("chat completion stream: %w", err)
		}
		ch <- final
	}()

	return ch, nil
}

func (a *OpenAIAdapter) params(messages []entities.ChatMessage, opts ports.CompletionOptions) openai.ChatCompletionNewParams {
	p := openai.ChatCompletionNewParams{
		Model:       shared.ChatModel(a.model),
		Messages:    convertMessages(messages),
		Temperature: openai.Float(opts.Temperature),
	}
	if opts.MaxTokens > 0 {
		p.MaxTokens = openai.Int(int64(opts.MaxTokens))
	}
	return p
}

func convertMessages(messages []entities.ChatMessage) []openai.ChatCompletionMessageParamUnion {
	result := make([]openai.ChatCompletionMessageParamUnion, len(messages))
	for i, msg := range messages {
		switch msg.Role {
		case entities.RoleSystem:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfSystem: &openai.ChatCompletionSystemMessageParam{
					Content: openai.ChatCompletionSystemMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		case entities.RoleAssistant:
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfAssistant: &openai.ChatCompletionAssistantMessageParam{
					Content: openai.ChatCompletionAssistantMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		default: // unknown roles are sent as user turns
			result[i] = openai.ChatCompletionMessageParamUnion{
				OfUser: &openai.ChatCompletionUserMessageParam{
					Content: openai.ChatCompletionUserMessageParamContentUnion{
						OfString: openai.String(msg.Content),
					},
				},
			}
		}
	}
	return result
}
