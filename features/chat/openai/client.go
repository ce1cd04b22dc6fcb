// Package openai provides a chat.Service implementation backed by the OpenAI
// Chat Completions API. It maps the harmony transcript onto chat completion
// messages using github.com/sashabaranov/go-openai and returns the first
// choice's text as the assistant reply.
package openai

import (
	"context"
	"errors"
	"fmt"

	openai "github.com/sashabaranov/go-openai"

	"goa.design/harmony/runtime/harmony/chat"
)

// ChatClient captures the subset of the go-openai client used by the adapter.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (
		openai.ChatCompletionResponse, error)
}

// Options configures the OpenAI adapter.
type Options struct {
	Client      ChatClient
	Model       string
	Temperature float32
	MaxTokens   int
}

// Client implements chat.Service via the OpenAI Chat Completions API.
type Client struct {
	chat        ChatClient
	model       string
	temperature float32
	maxTokens   int
}

var _ chat.Service = (*Client)(nil)

// New builds an OpenAI-backed chat service from the provided options.
func New(opts Options) (*Client, error) {
	if opts.Client == nil {
		return nil, errors.New("openai client is required")
	}
	if opts.Model == "" {
		return nil, errors.New("model is required")
	}
	return &Client{
		chat:        opts.Client,
		model:       opts.Model,
		temperature: opts.Temperature,
		maxTokens:   opts.MaxTokens,
	}, nil
}

// NewFromAPIKey constructs a client using the default go-openai HTTP client.
func NewFromAPIKey(apiKey, model string) (*Client, error) {
	if apiKey == "" {
		return nil, errors.New("api key is required")
	}
	return New(Options{Client: openai.NewClient(apiKey), Model: model})
}

// GetAssistantReply implements chat.Service.
func (c *Client) GetAssistantReply(ctx context.Context, history []chat.Entry, filter chat.Filter) (string, error) {
	entries := chat.ApplyFilter(history, filter)
	if len(entries) == 0 {
		return "", errors.New("chat history is empty after filtering")
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(entries))
	for _, e := range entries {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    translateRole(e.Role),
			Content: e.Content,
		})
	}
	response, err := c.chat.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Messages:    messages,
		Temperature: c.temperature,
		MaxTokens:   c.maxTokens,
	})
	if err != nil {
		return "", fmt.Errorf("openai chat completion: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", errors.New("openai chat completion returned no choices")
	}
	return response.Choices[0].Message.Content, nil
}

// translateRole maps harmony transcript roles onto the completion API's role
// set. Developer and tool lines travel as system context.
func translateRole(role string) string {
	switch role {
	case openai.ChatMessageRoleUser:
		return openai.ChatMessageRoleUser
	case openai.ChatMessageRoleAssistant:
		return openai.ChatMessageRoleAssistant
	default:
		return openai.ChatMessageRoleSystem
	}
}
