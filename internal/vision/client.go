// Package vision talks to a local OpenAI-compatible chat completions endpoint
// (LM Studio, llama.cpp server) with a screenshot attached as a base64 data
// URL. One request per observation: the caller's remaining time budget is the
// deadline, and a failed or timed out call is reported, never retried.
package vision

import (
	"bytes"
	"context"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
	"go.uber.org/zap"

	"github.com/xkilldash9x/droidpilot/api/schemas"
	"github.com/xkilldash9x/droidpilot/internal/config"
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Client implements schemas.Observer against a /chat/completions endpoint.
type Client struct {
	baseURL     string
	model       string
	maxTokens   int
	temperature float64
	httpClient  *http.Client
	logger      *zap.Logger
}

// -- OpenAI chat completions wire structures --

type chatMessage struct {
	Role    string        `json:"role"`
	Content []contentPart `json:"content"`
}

type contentPart struct {
	Type     string    `json:"type"`
	Text     string    `json:"text,omitempty"`
	ImageURL *imageURL `json:"image_url,omitempty"`
}

type imageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		FinishReason string `json:"finish_reason"`
	} `json:"choices"`
	Usage struct {
		PromptTokens     int `json:"prompt_tokens"`
		CompletionTokens int `json:"completion_tokens"`
		TotalTokens      int `json:"total_tokens"`
	} `json:"usage"`
	Error *struct {
		Message string `json:"message"`
	} `json:"error"`
}

// New builds a vision client from configuration. The http.Client carries no
// timeout of its own; each Observe call derives one from the request.
func New(cfg config.VisionConfig, logger *zap.Logger) *Client {
	return &Client{
		baseURL:     strings.TrimRight(cfg.BaseURL, "/"),
		model:       cfg.Model,
		maxTokens:   cfg.MaxTokens,
		temperature: cfg.Temperature,
		httpClient:  &http.Client{},
		logger:      logger.Named("vision"),
	}
}

// WithHTTPClient swaps the transport, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.httpClient = hc
	return c
}

// Observe sends the screenshot and prompt and returns the model's narration.
// When req.WithCoords is set the clickable elements are extracted from the
// completion text and converted to device pixels.
func (c *Client) Observe(ctx context.Context, req schemas.ObserveRequest) (schemas.Observation, error) {
	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}

	maxTokens := c.maxTokens
	if req.WithCoords {
		// The structured element tail roughly doubles the completion size.
		maxTokens *= 2
	}

	payload := chatRequest{
		Model: c.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []contentPart{
				{Type: "text", Text: BuildPrompt(req)},
				{Type: "image_url", ImageURL: &imageURL{
					URL: "data:image/png;base64," + base64.StdEncoding.EncodeToString(req.Image),
				}},
			},
		}},
		MaxTokens:   maxTokens,
		Temperature: c.temperature,
	}

	body, err := json.Marshal(payload)
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("failed to marshal vision request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("failed to create vision request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(httpReq)
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("vision request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return schemas.Observation{}, fmt.Errorf("failed to read vision response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return schemas.Observation{}, fmt.Errorf("vision endpoint returned status %d: %s", resp.StatusCode, truncate(string(respBody), 500))
	}

	var decoded chatResponse
	if err := json.Unmarshal(respBody, &decoded); err != nil {
		return schemas.Observation{}, fmt.Errorf("failed to decode vision response: %w", err)
	}
	if decoded.Error != nil {
		return schemas.Observation{}, fmt.Errorf("vision endpoint error: %s", decoded.Error.Message)
	}
	if len(decoded.Choices) == 0 {
		return schemas.Observation{}, fmt.Errorf("vision endpoint returned no choices")
	}

	content := decoded.Choices[0].Message.Content
	c.logger.Info("vision observation complete",
		zap.String("model", c.model),
		zap.Duration("duration", time.Since(start)),
		zap.Int("prompt_tokens", decoded.Usage.PromptTokens),
		zap.Int("completion_tokens", decoded.Usage.CompletionTokens),
	)

	obs := schemas.Observation{Description: content}
	if req.WithCoords {
		screen := req.Screen
		obs.Screen = &screen
		obs.Elements = ExtractElements(content, screen)
	}
	return obs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
