package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/communitysignals/scout/config"
)

// OpenAIProvider implements Provider against the OpenAI chat completions API.
type OpenAIProvider struct {
	cfg    config.LLMConfig
	client *http.Client
	logger *log.Logger
	usage  UsageRecorder
}

// NewOpenAIProvider creates an OpenAI-backed provider.
func NewOpenAIProvider(cfg config.LLMConfig) *OpenAIProvider {
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &OpenAIProvider{
		cfg:    cfg,
		client: &http.Client{Timeout: timeout},
		logger: log.New(log.Writer(), "[LLM] ", log.LstdFlags),
	}
}

// NewProvider creates a provider based on configuration. usage may be nil to
// skip token accounting.
func NewProvider(cfg config.LLMConfig, usage UsageRecorder) (Provider, error) {
	switch cfg.Provider {
	case "", "openai":
		p := NewOpenAIProvider(cfg)
		p.usage = usage
		return p, nil
	default:
		return nil, fmt.Errorf("unsupported LLM provider type: %s", cfg.Provider)
	}
}

// Complete generates text for a system/user prompt pair.
func (p *OpenAIProvider) Complete(ctx context.Context, systemPrompt, userPrompt, model string, maxTokens int) (string, error) {
	out, _, _, err := p.CompleteWithTokens(ctx, systemPrompt, userPrompt, model, maxTokens)
	return out, err
}

// CompleteWithTokens generates text and returns token usage. Transient
// failures are retried up to cfg.MaxRetries times with the base delay
// doubling each attempt; non-retryable errors propagate immediately.
func (p *OpenAIProvider) CompleteWithTokens(ctx context.Context, systemPrompt, userPrompt, model string, maxTokens int) (string, int64, int64, error) {
	retries := p.cfg.MaxRetries
	if retries <= 0 {
		retries = 3
	}
	backoff := p.cfg.RetryBackoff
	if backoff <= 0 {
		backoff = 500 * time.Millisecond
	}

	var lastErr error
	for attempt := 0; attempt <= retries; attempt++ {
		if attempt > 0 {
			select {
			case <-time.After(backoff * time.Duration(1<<(attempt-1))):
			case <-ctx.Done():
				return "", 0, 0, ctx.Err()
			}
		}
		out, in, comp, err := p.completeOnce(ctx, systemPrompt, userPrompt, model, maxTokens)
		if err == nil {
			if p.usage != nil {
				p.usage.RecordOracleCall(in, comp)
			}
			return out, in, comp, nil
		}
		if !IsRetryable(err) {
			return "", 0, 0, err
		}
		lastErr = err
		p.logger.Printf("transient LLM failure (attempt %d/%d): %v", attempt+1, retries+1, err)
	}
	return "", 0, 0, lastErr
}

func (p *OpenAIProvider) completeOnce(ctx context.Context, systemPrompt, userPrompt, model string, maxTokens int) (string, int64, int64, error) {
	apiKey := p.cfg.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if apiKey == "" {
		return "", 0, 0, fmt.Errorf("OpenAI API key not configured")
	}
	if maxTokens <= 0 {
		maxTokens = p.cfg.MaxTokens
	}

	type chatMsg struct {
		Role    string `json:"role"`
		Content string `json:"content"`
	}
	type chatReq struct {
		Model       string    `json:"model"`
		Messages    []chatMsg `json:"messages"`
		Temperature float64   `json:"temperature,omitempty"`
		MaxTokens   int       `json:"max_tokens,omitempty"`
	}

	msgs := make([]chatMsg, 0, 2)
	if systemPrompt != "" {
		msgs = append(msgs, chatMsg{Role: "system", Content: systemPrompt})
	}
	msgs = append(msgs, chatMsg{Role: "user", Content: userPrompt})

	body, err := json.Marshal(chatReq{
		Model:       model,
		Messages:    msgs,
		Temperature: p.cfg.Temperature,
		MaxTokens:   maxTokens,
	})
	if err != nil {
		return "", 0, 0, fmt.Errorf("marshal: %w", err)
	}

	baseURL := p.cfg.BaseURL
	if baseURL == "" {
		baseURL = "https://api.openai.com/v1"
	}
	req, err := http.NewRequestWithContext(ctx, "POST", baseURL+"/chat/completions", bytes.NewBuffer(body))
	if err != nil {
		return "", 0, 0, fmt.Errorf("request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := p.client.Do(req)
	if err != nil {
		if isTimeout(err) {
			return "", 0, 0, retryableError{fmt.Errorf("do: %w", err)}
		}
		return "", 0, 0, fmt.Errorf("do: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		err := fmt.Errorf("OpenAI status %d: %s", resp.StatusCode, string(b))
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return "", 0, 0, retryableError{err}
		}
		return "", 0, 0, err
	}

	var out struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
		Usage struct {
			PromptTokens     int `json:"prompt_tokens"`
			CompletionTokens int `json:"completion_tokens"`
		} `json:"usage"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", 0, 0, fmt.Errorf("decode: %w", err)
	}
	if len(out.Choices) == 0 {
		return "", 0, 0, ErrNoChoices
	}
	return out.Choices[0].Message.Content, int64(out.Usage.PromptTokens), int64(out.Usage.CompletionTokens), nil
}

func isTimeout(err error) bool {
	var ne net.Error
	if errors.As(err, &ne) {
		return ne.Timeout()
	}
	return false
}
