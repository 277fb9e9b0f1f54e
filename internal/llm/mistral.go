package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"
)

const mistralDefaultBaseURL = "https://api.mistral.ai"

// MistralProvider talks to the Mistral chat completions API directly over
// HTTP; there is no official Go SDK.
type MistralProvider struct {
	apiKey     string
	baseURL    string
	httpClient *http.Client
}

func NewMistralProvider(apiKey string) *MistralProvider {
	return &MistralProvider{
		apiKey:  apiKey,
		baseURL: mistralDefaultBaseURL,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

func (p *MistralProvider) Name() string { return "Mistral AI" }

func (p *MistralProvider) Models() []string {
	return []string{
		"mistral-large-latest",
		"mistral-medium-latest",
		"mistral-small-latest",
		"mistral-tiny",
		"codestral-latest",
		"open-mistral-7b",
		"open-mixtral-8x7b",
		"open-mixtral-8x22b",
	}
}

func (p *MistralProvider) ValidModel(model string) bool {
	return modelListed(p.Models(), model)
}

type mistralChatReq struct {
	Model       string           `json:"model"`
	Messages    []mistralMessage `json:"messages"`
	Temperature float64          `json:"temperature"`
	MaxTokens   int              `json:"max_tokens,omitempty"`
	TopP        float64          `json:"top_p"`
}

type mistralMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type mistralChatResp struct {
	Model   string `json:"model"`
	Choices []struct {
		Message      mistralMessage `json:"message"`
		FinishReason string         `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
}

func (p *MistralProvider) Execute(ctx context.Context, prompt, model string, opts Options) (*Result, error) {
	opts = opts.withDefaults()

	body, err := json.Marshal(mistralChatReq{
		Model:       model,
		Messages:    []mistralMessage{{Role: "user", Content: prompt}},
		Temperature: *opts.Temperature,
		MaxTokens:   opts.MaxTokens,
		TopP:        *opts.TopP,
	})
	if err != nil {
		return nil, &ProviderError{Provider: "Mistral", Err: fmt.Errorf("marshal request: %w", err)}
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL+"/v1/chat/completions", bytes.NewReader(body))
	if err != nil {
		return nil, &ProviderError{Provider: "Mistral", Err: err}
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)

	start := time.Now()
	resp, err := p.httpClient.Do(httpReq)
	latency := time.Since(start).Milliseconds()
	if err != nil {
		return nil, &ProviderError{Provider: "Mistral", Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, &ProviderError{Provider: "Mistral", Err: fmt.Errorf("status %d: %s", resp.StatusCode, bytes.TrimSpace(msg))}
	}

	var mResp mistralChatResp
	if err := json.NewDecoder(resp.Body).Decode(&mResp); err != nil {
		return nil, &ProviderError{Provider: "Mistral", Err: fmt.Errorf("decode response: %w", err)}
	}

	content := ""
	finishReason := ""
	if len(mResp.Choices) > 0 {
		content = mResp.Choices[0].Message.Content
		finishReason = mResp.Choices[0].FinishReason
	}

	return &Result{
		Text:             content,
		PromptTokens:     mResp.Usage.PromptTokens,
		CompletionTokens: mResp.Usage.CompletionTokens,
		TotalTokens:      mResp.Usage.TotalTokens,
		Cost:             splitCost(mistralPrices, mistralDefaultPrice, model, mResp.Usage.PromptTokens, mResp.Usage.CompletionTokens),
		LatencyMs:        latency,
		Metadata: map[string]any{
			"model":         mResp.Model,
			"finish_reason": finishReason,
		},
	}, nil
}
