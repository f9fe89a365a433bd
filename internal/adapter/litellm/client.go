// Package litellm implements the extractor port against a LiteLLM proxy's
// OpenAI-compatible chat completions API.
package litellm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/formulab/desbank/internal/config"
	"github.com/formulab/desbank/internal/domain"
	"github.com/formulab/desbank/internal/domain/experiment"
	"github.com/formulab/desbank/internal/domain/insight"
	"github.com/formulab/desbank/internal/resilience"
)

const systemPrompt = `You analyze deep eutectic solvent (DES) formulation experiments.
Given the derivation trace of a recommendation and the experimental outcome,
extract the generalizable lessons a formulation chemist should remember.
Respond with a JSON array only. Each element has the fields "title" (short),
"description" (one sentence) and "content" (the full lesson). Return [] when
the experiment teaches nothing reusable.`

// Client extracts insight candidates by prompting a model behind a LiteLLM
// proxy. It implements extractor.Extractor.
type Client struct {
	baseURL     string
	masterKey   string
	model       string
	temperature float64
	maxTokens   int
	httpClient  *http.Client
	breaker     *resilience.Breaker
}

// NewClient creates an extractor client from configuration.
func NewClient(cfg config.LiteLLM, ext config.Extractor) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.URL, "/"),
		masterKey:   cfg.MasterKey,
		model:       cfg.Model,
		temperature: ext.Temperature,
		maxTokens:   ext.MaxTokens,
		httpClient: &http.Client{
			Timeout: ext.Timeout,
		},
	}
}

// SetBreaker attaches a circuit breaker to all outgoing HTTP calls.
func (c *Client) SetBreaker(b *resilience.Breaker) {
	c.breaker = b
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// Extract prompts the model with the trajectory and outcome and parses the
// returned candidate list. All failures wrap domain.ErrExtraction so the
// feedback job can classify them.
func (c *Client) Extract(ctx context.Context, trajectory json.RawMessage, result *experiment.Result) ([]insight.Candidate, error) {
	prompt, err := buildPrompt(trajectory, result)
	if err != nil {
		return nil, fmt.Errorf("build extraction prompt: %w: %w", domain.ErrExtraction, err)
	}

	body, err := json.Marshal(chatRequest{
		Model: c.model,
		Messages: []chatMessage{
			{Role: "system", Content: systemPrompt},
			{Role: "user", Content: prompt},
		},
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal chat request: %w: %w", domain.ErrExtraction, err)
	}

	data, err := c.doRequest(ctx, body)
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w: %w", domain.ErrExtraction, err)
	}

	var resp chatResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, fmt.Errorf("unmarshal chat response: %w: %w", domain.ErrExtraction, err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("chat response has no choices: %w", domain.ErrExtraction)
	}

	candidates, err := parseCandidates(resp.Choices[0].Message.Content)
	if err != nil {
		return nil, fmt.Errorf("parse candidates: %w: %w", domain.ErrExtraction, err)
	}
	return candidates, nil
}

// buildPrompt renders the trajectory and the observed outcome as the user
// message. A missing trajectory is allowed; the model then reasons from the
// outcome alone.
func buildPrompt(trajectory json.RawMessage, result *experiment.Result) (string, error) {
	outcome, err := json.Marshal(result)
	if err != nil {
		return "", err
	}

	var b strings.Builder
	if len(trajectory) > 0 {
		b.WriteString("Derivation trace:\n")
		b.Write(trajectory)
		b.WriteString("\n\n")
	}
	b.WriteString("Experimental outcome:\n")
	b.Write(outcome)
	return b.String(), nil
}

// parseCandidates tolerates markdown code fences around the JSON array,
// which some models emit despite the instructions.
func parseCandidates(content string) ([]insight.Candidate, error) {
	content = strings.TrimSpace(content)
	if after, ok := strings.CutPrefix(content, "```json"); ok {
		content = after
	} else if after, ok := strings.CutPrefix(content, "```"); ok {
		content = after
	}
	content = strings.TrimSuffix(strings.TrimSpace(content), "```")
	content = strings.TrimSpace(content)

	var candidates []insight.Candidate
	if err := json.Unmarshal([]byte(content), &candidates); err != nil {
		return nil, err
	}
	return candidates, nil
}

func (c *Client) doRequest(ctx context.Context, body []byte) ([]byte, error) {
	var result []byte
	call := func() error {
		req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
		if err != nil {
			return fmt.Errorf("create request: %w", err)
		}

		req.Header.Set("Content-Type", "application/json")
		if c.masterKey != "" {
			req.Header.Set("Authorization", "Bearer "+c.masterKey)
		}

		resp, err := c.httpClient.Do(req)
		if err != nil {
			return fmt.Errorf("http request: %w", err)
		}
		defer func() { _ = resp.Body.Close() }()

		data, err := io.ReadAll(resp.Body)
		if err != nil {
			return fmt.Errorf("read response: %w", err)
		}

		if resp.StatusCode >= 400 {
			return fmt.Errorf("litellm API error %d: %s", resp.StatusCode, string(data))
		}

		result = data
		return nil
	}

	if c.breaker != nil {
		if err := c.breaker.Execute(call); err != nil {
			return nil, err
		}
		return result, nil
	}

	if err := call(); err != nil {
		return nil, err
	}
	return result, nil
}
