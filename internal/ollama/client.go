package ollama

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	RoleSystem    = "system"
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// Message is a single chat turn.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// ChatRequest is the body sent to /api/chat.
type ChatRequest struct {
	Model    string    `json:"model"`
	Messages []Message `json:"messages"`
	Stream   bool      `json:"stream"`
}

// ChatResponse is the non-streaming /api/chat reply.
type ChatResponse struct {
	Model     string  `json:"model"`
	CreatedAt string  `json:"created_at"`
	Message   Message `json:"message"`
	Done      bool    `json:"done"`
}

// ModelsResponse is the /api/tags reply.
type ModelsResponse struct {
	Models []Model `json:"models"`
}

// Model describes one locally installed model.
type Model struct {
	Name       string       `json:"name"`
	ModifiedAt time.Time    `json:"modified_at"`
	Size       int64        `json:"size"`
	Digest     string       `json:"digest"`
	Details    ModelDetails `json:"details"`
}

type Families []string

// ModelDetails holds format and quantization information of a model.
type ModelDetails struct {
	Format            string   `json:"format"`
	Family            string   `json:"family"`
	Families          Families `json:"families"`
	ParameterSize     string   `json:"parameter_size"`
	QuantizationLevel string   `json:"quantization_level"`
}

// UnmarshalJSON accepts null as an empty list.
func (f *Families) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = Families{}
		return nil
	}

	var families []string
	if err := json.Unmarshal(data, &families); err != nil {
		return err
	}
	*f = Families(families)
	return nil
}

// ClientConfig holds the configuration for the client.
type ClientConfig struct {
	BaseURL    string
	ChatPath   string
	ModelsPath string
	Timeout    time.Duration // 0 leaves the http.Client without a timeout
}

// DefaultClientConfig targets a local Ollama server.
func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		BaseURL:    "http://localhost:11434",
		ChatPath:   "/api/chat",
		ModelsPath: "/api/tags",
	}
}

// Client talks to the Ollama HTTP API.
type Client struct {
	http      *http.Client
	chatURL   string
	modelsURL string
}

type Option func(*Client)

// WithHTTPClient replaces the underlying http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) {
		c.http = hc
	}
}

// NewClient creates a client from cfg. Empty paths fall back to the defaults.
func NewClient(cfg ClientConfig, opts ...Option) (*Client, error) {
	def := DefaultClientConfig()
	if strings.TrimSpace(cfg.BaseURL) == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.ChatPath == "" {
		cfg.ChatPath = def.ChatPath
	}
	if cfg.ModelsPath == "" {
		cfg.ModelsPath = def.ModelsPath
	}

	base, err := url.Parse(strings.TrimSpace(cfg.BaseURL))
	if err != nil {
		return nil, fmt.Errorf("ollama: parsing base url: %w", err)
	}
	if base.Scheme == "" || base.Host == "" {
		return nil, fmt.Errorf("ollama: base url %q must include scheme and host", cfg.BaseURL)
	}

	c := &Client{
		http:      &http.Client{Timeout: cfg.Timeout},
		chatURL:   base.ResolveReference(&url.URL{Path: cfg.ChatPath}).String(),
		modelsURL: base.ResolveReference(&url.URL{Path: cfg.ModelsPath}).String(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// ChatURL returns the resolved chat endpoint.
func (c *Client) ChatURL() string { return c.chatURL }

// ModelsURL returns the resolved model listing endpoint.
func (c *Client) ModelsURL() string { return c.modelsURL }

// Chat sends one non-streaming chat request.
func (c *Client) Chat(ctx context.Context, req *ChatRequest) (*ChatResponse, error) {
	bts, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("ollama: encoding chat request: %w", err)
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.chatURL, bytes.NewReader(bts))
	if err != nil {
		return nil, fmt.Errorf("ollama: building chat request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")

	var out ChatResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Models lists the models installed on the server.
func (c *Client) Models(ctx context.Context) ([]Model, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, c.modelsURL, nil)
	if err != nil {
		return nil, fmt.Errorf("ollama: building models request: %w", err)
	}

	var out ModelsResponse
	if err := c.do(httpReq, &out); err != nil {
		return nil, err
	}
	return out.Models, nil
}

// do executes req and decodes a 2xx JSON body into out. Non-2xx bodies are
// drained and discarded, never parsed.
func (c *Client) do(req *http.Request, out any) error {
	resp, err := c.http.Do(req)
	if err != nil {
		return &TransportError{URL: req.URL.String(), Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return &StatusError{StatusCode: resp.StatusCode, Status: resp.Status, URL: req.URL.String()}
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return &DecodeError{URL: req.URL.String(), Err: fmt.Errorf("reading body: %w", err)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &DecodeError{URL: req.URL.String(), Err: err}
	}
	return nil
}
