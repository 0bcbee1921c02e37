// Package llm wraps the Gemini client behind the Completer contract. Every
// call carries its own timeout and a bounded retry with exponential backoff,
// so a provider outage surfaces as a single failed call, never a hung turn.
package llm

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"google.golang.org/genai"

	"github.com/support-agent/server/internal/agent/model"
	logx "github.com/support-agent/server/pkg/logger"
)

const (
	callTimeout  = 60 * time.Second
	maxRetries   = 3
	baseDelay    = 1 * time.Second
	maxDelay     = 8 * time.Second
	jitterFactor = 0.3
)

// NewClient creates the process-wide Gemini client. It is safe for concurrent
// use by every in-flight turn.
func NewClient(ctx context.Context, apiKey, baseURL string) (*genai.Client, error) {
	clientCfg := &genai.ClientConfig{
		APIKey:  apiKey,
		Backend: genai.BackendGeminiAPI,
	}
	if baseURL != "" {
		clientCfg.HTTPOptions.BaseURL = baseURL
	}

	client, err := genai.NewClient(ctx, clientCfg)
	if err != nil {
		logx.Error().Err(err).Msg("error creating Gemini client")
		return nil, fmt.Errorf("error creating Gemini client: %w", err)
	}
	return client, nil
}

// Model is a single Gemini model bound to generation parameters.
type Model struct {
	client      *genai.Client
	name        string
	temperature float32
	maxTokens   int
}

func NewClassifierModel(client *genai.Client, cfg model.ClassifierModelConfig) *Model {
	return &Model{client: client, name: cfg.Model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
}

func NewResponseModel(client *genai.Client, cfg model.ResponseModelConfig) *Model {
	return &Model{client: client, name: cfg.Model, temperature: cfg.Temperature, maxTokens: cfg.MaxTokens}
}

func (m *Model) buildRequest(system, user string) ([]*genai.Content, *genai.GenerateContentConfig) {
	config := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(m.temperature),
	}
	if m.maxTokens > 0 {
		config.MaxOutputTokens = int32(m.maxTokens)
	}
	if system != "" {
		config.SystemInstruction = &genai.Content{Parts: []*genai.Part{{Text: system}}}
	}

	contents := []*genai.Content{
		{Role: "user", Parts: []*genai.Part{{Text: user}}},
	}
	return contents, config
}

// Complete performs one generation call with timeout and bounded retry.
func (m *Model) Complete(ctx context.Context, system, user string) (string, error) {
	contents, config := m.buildRequest(system, user)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var resp *genai.GenerateContentResponse
	var err error
	for attempt := 0; attempt < maxRetries; attempt++ {
		if attempt > 0 {
			select {
			case <-callCtx.Done():
				return "", callCtx.Err()
			case <-time.After(calculateBackoff(attempt)):
			}
		}

		resp, err = m.client.Models.GenerateContent(callCtx, m.name, contents, config)
		if err == nil {
			break
		}
		if !isRetryable(err) {
			return "", fmt.Errorf("generate content: %w", err)
		}
	}
	if err != nil {
		return "", fmt.Errorf("generate content after %d attempts: %w", maxRetries, err)
	}

	m.logUsage(resp)
	return responseText(resp), nil
}

// CompleteStream streams generation output through onChunk and returns the
// concatenated text. Once chunks have been emitted the call is not retried.
func (m *Model) CompleteStream(ctx context.Context, system, user string, onChunk func(string) error) (string, error) {
	contents, config := m.buildRequest(system, user)

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	var sb strings.Builder
	var last *genai.GenerateContentResponse
	for resp, err := range m.client.Models.GenerateContentStream(callCtx, m.name, contents, config) {
		if err != nil {
			return "", fmt.Errorf("stream content: %w", err)
		}
		last = resp
		chunk := responseText(resp)
		if chunk == "" {
			continue
		}
		sb.WriteString(chunk)
		if onChunk != nil {
			if err := onChunk(chunk); err != nil {
				return "", fmt.Errorf("stream consumer: %w", err)
			}
		}
	}

	m.logUsage(last)
	return sb.String(), nil
}

// responseText concatenates the text parts of the first candidate.
func responseText(resp *genai.GenerateContentResponse) string {
	if resp == nil || len(resp.Candidates) == 0 || resp.Candidates[0].Content == nil {
		return ""
	}
	var sb strings.Builder
	for _, part := range resp.Candidates[0].Content.Parts {
		if part != nil && part.Text != "" {
			sb.WriteString(part.Text)
		}
	}
	return sb.String()
}

func (m *Model) logUsage(resp *genai.GenerateContentResponse) {
	if resp == nil || resp.UsageMetadata == nil {
		return
	}
	LogUsage(m.name, int(resp.UsageMetadata.PromptTokenCount), int(resp.UsageMetadata.CandidatesTokenCount))
}

func isRetryable(err error) bool {
	if err == nil {
		return false
	}
	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "429") ||
		strings.Contains(msg, "500") ||
		strings.Contains(msg, "503") ||
		strings.Contains(msg, "timeout") ||
		strings.Contains(msg, "deadline") ||
		strings.Contains(msg, "unavailable")
}

// calculateBackoff returns the delay before the given retry attempt with
// jitter applied. The sequence is 1s, 2s, 4s capped at maxDelay.
func calculateBackoff(attempt int) time.Duration {
	shift := attempt - 1
	if shift < 0 {
		shift = 0
	}
	delay := time.Duration(1<<uint(shift)) * baseDelay
	if delay > maxDelay {
		delay = maxDelay
	}
	jitter := time.Duration(float64(delay) * jitterFactor * (rand.Float64()*2 - 1))
	return delay + jitter
}

var _ model.Completer = (*Model)(nil)
