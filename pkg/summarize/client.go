// Package summarize wraps an OpenAI-compatible chat completion API to
// condense lesson text into an overview/summary pair.
package summarize

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

const (
	systemPrompt = "You are a helpful teaching assistant."
	// promptPrefix is prepended verbatim to the (already truncated) text.
	promptPrefix = "Please provide an overview and a detailed summary of the following lesson content:\n\n"

	defaultModel   = "gpt-3.5-turbo"
	defaultTimeout = 60 * time.Second
)

// ErrMissingAPIKey is returned by New so that a missing credential fails at
// startup, not on the first upload.
var ErrMissingAPIKey = errors.New("summarize: api key is not set")

// Config holds the construction-time settings for the client.
type Config struct {
	APIKey  string
	Model   string        // defaults to gpt-3.5-turbo
	BaseURL string        // optional OpenAI-compatible endpoint
	Timeout time.Duration // per-call bound, defaults to 60s
}

// Result pairs the first line of the model output with the full text. When
// the output has no newline, Overview equals Summary.
type Result struct {
	Overview string
	Summary  string
}

// Client calls the chat completion endpoint with a fixed instruction
// template. One attempt per call; retries are the caller's decision.
type Client struct {
	api     *openai.Client
	model   string
	timeout time.Duration
}

// New builds a Client, validating the credential eagerly.
func New(cfg Config) (*Client, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, ErrMissingAPIKey
	}
	cc := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		cc.BaseURL = cfg.BaseURL
	}
	model := cfg.Model
	if model == "" {
		model = defaultModel
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Client{
		api:     openai.NewClientWithConfig(cc),
		model:   model,
		timeout: timeout,
	}, nil
}

// Summarize sends the lesson text and splits the response. The context is
// bounded by the configured timeout; expiry surfaces as an ordinary error.
func (c *Client) Summarize(ctx context.Context, text string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model: c.model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: promptPrefix + text},
		},
	})
	if err != nil {
		return Result{}, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return Result{}, errors.New("empty response from model")
	}
	return Split(resp.Choices[0].Message.Content), nil
}

// Split derives the overview (text up to the first newline) from the full
// model output.
func Split(blob string) Result {
	overview := blob
	if i := strings.IndexByte(blob, '\n'); i >= 0 {
		overview = blob[:i]
	}
	return Result{Overview: overview, Summary: blob}
}
