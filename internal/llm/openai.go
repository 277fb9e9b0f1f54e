package llm

import (
	"context"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

type OpenAIProvider struct {
	client *openai.Client
}

func NewOpenAIProvider(apiKey string) *OpenAIProvider {
	return &OpenAIProvider{
		client: openai.NewClient(apiKey),
	}
}

func (p *OpenAIProvider) Name() string { return "OpenAI" }

func (p *OpenAIProvider) Models() []string {
	return []string{
		"gpt-4", "gpt-4-turbo-preview", "gpt-3.5-turbo", "gpt-3.5-turbo-16k",
	}
}

func (p *OpenAIProvider) ValidModel(model string) bool {
	return modelListed(p.Models(), model)
}

func (p *OpenAIProvider) Execute(ctx context.Context, prompt, model string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	req := openai.ChatCompletionRequest{
		Model: model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		Temperature: float32(*opts.Temperature),
		MaxTokens:   opts.MaxTokens,
		TopP:        float32(*opts.TopP),
	}

	start := time.Now()
	resp, err := p.client.CreateChatCompletion(ctx, req)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &ProviderError{Provider: "OpenAI", Err: err}
	}

	content := ""
	finishReason := ""
	if len(resp.Choices) > 0 {
		content = resp.Choices[0].Message.Content
		finishReason = string(resp.Choices[0].FinishReason)
	}

	return &Result{
		Text:             content,
		PromptTokens:     resp.Usage.PromptTokens,
		CompletionTokens: resp.Usage.CompletionTokens,
		TotalTokens:      resp.Usage.TotalTokens,
		Cost:             blendedCost(openaiBlendedPer1K, openaiDefaultPer1K, model, resp.Usage.TotalTokens),
		LatencyMs:        latency,
		Metadata: map[string]any{
			"model":         resp.Model,
			"finish_reason": finishReason,
		},
	}, nil
}
