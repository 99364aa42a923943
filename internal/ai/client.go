package ai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"google.golang.org/genai"
)

type Config struct {
	Model  string
	APIKey string
}

// Request is one single-turn generation. Every call site sets its own
// temperature and output budget.
type Request struct {
	System      string
	Prompt      string
	Temperature float32
	MaxTokens   int32
	// JSON asks the model for an application/json response body.
	JSON bool
}

type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}

var ErrEmptyResponse = errors.New("llm returned an empty response")

// Client talks to Gemini through the genai SDK.
type Client struct {
	models *genai.Models
	model  string
}

func NewClient(ctx context.Context, cfg Config) (*Client, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("llm api key is required")
	}
	model := resolveModelAlias(cfg.Model)
	if model == "" {
		return nil, fmt.Errorf("llm model is required")
	}
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  cfg.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("create genai client: %w", err)
	}
	return &Client{models: client.Models, model: model}, nil
}

func (c *Client) Model() string {
	if c == nil {
		return ""
	}
	return c.model
}

func (c *Client) Generate(ctx context.Context, req Request) (string, error) {
	if c == nil || c.models == nil {
		return "", errors.New("client is nil")
	}
	resp, err := c.models.GenerateContent(ctx, c.model, genai.Text(req.Prompt), generateConfig(req))
	if err != nil {
		return "", fmt.Errorf("generate content: %w", err)
	}
	text := strings.TrimSpace(resp.Text())
	if text == "" {
		return "", ErrEmptyResponse
	}
	return text, nil
}

func generateConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{
		Temperature: genai.Ptr(req.Temperature),
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = req.MaxTokens
	}
	if req.JSON {
		cfg.ResponseMIMEType = "application/json"
	}
	if strings.TrimSpace(req.System) != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.System, genai.RoleUser)
	}
	return cfg
}

func resolveModelAlias(model string) string {
	alias := strings.ToLower(strings.TrimSpace(model))
	switch alias {
	case "":
		return ""
	case "fast":
		return "gemini-2.5-flash-lite"
	case "balanced":
		return "gemini-2.5-flash"
	case "smart":
		return "gemini-2.5-pro"
	}
	return strings.TrimSpace(model)
}

// GenerateJSON runs req in JSON mode and decodes the reply into out.
// Markdown code fences around the body are tolerated.
func GenerateJSON(ctx context.Context, gen Generator, req Request, out any) error {
	req.JSON = true
	text, err := gen.Generate(ctx, req)
	if err != nil {
		return err
	}
	body := StripCodeFence(text)
	if err := json.Unmarshal([]byte(body), out); err != nil {
		return fmt.Errorf("decode llm json: %w", err)
	}
	return nil
}

func StripCodeFence(text string) string {
	body := strings.TrimSpace(text)
	if !strings.HasPrefix(body, "```") {
		return body
	}
	body = strings.TrimPrefix(body, "```")
	if nl := strings.IndexByte(body, '\n'); nl >= 0 {
		body = body[nl+1:]
	}
	body = strings.TrimSuffix(strings.TrimSpace(body), "```")
	return strings.TrimSpace(body)
}
