package scanner

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
)

// ErrAllEndpointsFailed means every transport in the chain failed for one
// frame. The scheduler treats it as "no detections this cycle".
var ErrAllEndpointsFailed = errors.New("all inference endpoints failed")

const defaultInstruction = "List every sellable item you see in this image as a JSON array. " +
	"For each item include itemName, category, condition, estimatedPrice and confidence."

// Transport issues one inference call against a single endpoint and
// returns the raw textual payload. It performs no retries; failover
// happens across transports, not within one.
type Transport interface {
	Name() string
	Invoke(ctx context.Context, req *ProcessingRequest) (string, error)
}

// Dispatcher tries transports in priority order and parses the first
// usable response.
type Dispatcher struct {
	transports []Transport
	logger     *slog.Logger
}

func NewDispatcher(cfg Config, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	cfg = cfg.withDefaults()

	httpClient := &http.Client{Timeout: cfg.RequestTimeout}
	transports := make([]Transport, 0, len(cfg.Endpoints))
	for _, ep := range cfg.Endpoints {
		transports = append(transports, newTransport(ep, cfg.Model, httpClient))
	}

	return &Dispatcher{
		transports: transports,
		logger:     logger.With("component", "dispatcher"),
	}
}

// NewDispatcherWithTransports is the seam tests and custom hosts use to
// bypass HTTP entirely.
func NewDispatcherWithTransports(transports []Transport, logger *slog.Logger) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		transports: transports,
		logger:     logger.With("component", "dispatcher"),
	}
}

func (d *Dispatcher) Dispatch(ctx context.Context, req *ProcessingRequest) ([]DetectedItem, error) {
	for _, transport := range d.transports {
		raw, err := transport.Invoke(ctx, req)
		if err != nil {
			d.logger.Warn("endpoint failed, trying next",
				"endpoint", transport.Name(),
				"frame_id", req.Frame.ID,
				"error", err)
			continue
		}
		return ParseResponse(raw), nil
	}
	return nil, ErrAllEndpointsFailed
}

func newTransport(ep Endpoint, model string, client *http.Client) Transport {
	switch ep.Kind {
	case "generate":
		return &generateTransport{endpoint: ep, model: model, client: client}
	case "analyze":
		return &analyzeTransport{endpoint: ep, client: client}
	default:
		return &chatTransport{endpoint: ep, model: model, client: client}
	}
}

func postJSON(ctx context.Context, client *http.Client, url string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return fmt.Errorf("post: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("endpoint returned status %d", resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func instruction(req *ProcessingRequest) string {
	if req.Options.Instruction != "" {
		return req.Options.Instruction
	}
	return defaultInstruction
}

// chatTransport speaks the OpenAI-compatible multimodal chat shape used by
// llama.cpp and similar local servers.
type chatTransport struct {
	endpoint Endpoint
	model    string
	client   *http.Client
}

type chatMessage struct {
	Role    string        `json:"role"`
	Content []chatContent `json:"content"`
}

type chatContent struct {
	Type     string        `json:"type"`
	Text     string        `json:"text,omitempty"`
	ImageURL *chatImageURL `json:"image_url,omitempty"`
}

type chatImageURL struct {
	URL string `json:"url"`
}

type chatRequest struct {
	Model       string        `json:"model,omitempty"`
	Messages    []chatMessage `json:"messages"`
	MaxTokens   int           `json:"max_tokens,omitempty"`
	Temperature float64       `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (t *chatTransport) Name() string {
	return t.endpoint.Name
}

func (t *chatTransport) Invoke(ctx context.Context, req *ProcessingRequest) (string, error) {
	imageURL := "data:image/jpeg;base64," + base64.StdEncoding.EncodeToString(req.Frame.Data)

	payload := chatRequest{
		Model: t.model,
		Messages: []chatMessage{{
			Role: "user",
			Content: []chatContent{
				{Type: "text", Text: instruction(req)},
				{Type: "image_url", ImageURL: &chatImageURL{URL: imageURL}},
			},
		}},
		MaxTokens:   req.Options.MaxTokens,
		Temperature: req.Options.Temperature,
	}

	var resp chatResponse
	if err := postJSON(ctx, t.client, t.endpoint.URL, payload, &resp); err != nil {
		return "", err
	}
	if len(resp.Choices) == 0 {
		return "", errors.New("empty choices in chat response")
	}
	return resp.Choices[0].Message.Content, nil
}

// generateTransport speaks the Ollama-style prompt+images completion shape.
type generateTransport struct {
	endpoint Endpoint
	model    string
	client   *http.Client
}

type generateRequest struct {
	Model  string   `json:"model,omitempty"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Text     string `json:"text"`
}

func (t *generateTransport) Name() string {
	return t.endpoint.Name
}

func (t *generateTransport) Invoke(ctx context.Context, req *ProcessingRequest) (string, error) {
	payload := generateRequest{
		Model:  t.model,
		Prompt: instruction(req),
		Images: []string{base64.StdEncoding.EncodeToString(req.Frame.Data)},
		Stream: false,
	}

	var resp generateResponse
	if err := postJSON(ctx, t.client, t.endpoint.URL, payload, &resp); err != nil {
		return "", err
	}
	if resp.Response != "" {
		return resp.Response, nil
	}
	if resp.Text != "" {
		return resp.Text, nil
	}
	return "", errors.New("empty generate response")
}

// analyzeTransport speaks a minimal image+instruction shape some local
// vision servers expose.
type analyzeTransport struct {
	endpoint Endpoint
	client   *http.Client
}

type analyzeRequest struct {
	Image       string `json:"image"`
	Instruction string `json:"instruction"`
}

type analyzeResponse struct {
	Result string `json:"result"`
	Text   string `json:"text"`
}

func (t *analyzeTransport) Name() string {
	return t.endpoint.Name
}

func (t *analyzeTransport) Invoke(ctx context.Context, req *ProcessingRequest) (string, error) {
	payload := analyzeRequest{
		Image:       base64.StdEncoding.EncodeToString(req.Frame.Data),
		Instruction: instruction(req),
	}

	var resp analyzeResponse
	if err := postJSON(ctx, t.client, t.endpoint.URL, payload, &resp); err != nil {
		return "", err
	}
	if resp.Result != "" {
		return resp.Result, nil
	}
	if resp.Text != "" {
		return resp.Text, nil
	}
	return "", errors.New("empty analyze response")
}
