package scanner

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func testRequest() *ProcessingRequest {
	return &ProcessingRequest{
		Frame: &Frame{ID: "frame-1", Data: []byte{0xff, 0xd8}, Width: 640, Height: 480},
	}
}

func TestDispatcher_FirstEndpointWins(t *testing.T) {
	primary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": `{"itemName":"Lamp","confidence":0.9}`}}},
		})
	}))
	defer primary.Close()

	secondary := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Error("secondary endpoint should not be called when primary succeeds")
	}))
	defer secondary.Close()

	d := NewDispatcher(Config{Endpoints: []Endpoint{
		{Name: "chat", Kind: "chat", URL: primary.URL},
		{Name: "generate", Kind: "generate", URL: secondary.URL},
	}}, testLogger())

	items, err := d.Dispatch(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Lamp" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestDispatcher_FailsOverOnError(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer failing.Close()

	fallback := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"response": `[{"name":"Chair"}]`})
	}))
	defer fallback.Close()

	d := NewDispatcher(Config{Endpoints: []Endpoint{
		{Name: "chat", Kind: "chat", URL: failing.URL},
		{Name: "generate", Kind: "generate", URL: fallback.URL},
	}}, testLogger())

	items, err := d.Dispatch(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(items) != 1 || items[0].Name != "Chair" {
		t.Errorf("unexpected items: %+v", items)
	}
}

func TestDispatcher_AllEndpointsFail(t *testing.T) {
	failing := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer failing.Close()

	d := NewDispatcher(Config{Endpoints: []Endpoint{
		{Name: "a", Kind: "chat", URL: failing.URL},
		{Name: "b", Kind: "generate", URL: failing.URL},
		{Name: "c", Kind: "analyze", URL: failing.URL},
	}}, testLogger())

	_, err := d.Dispatch(context.Background(), testRequest())
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Errorf("expected ErrAllEndpointsFailed, got %v", err)
	}
}

func TestDispatcher_NoEndpoints(t *testing.T) {
	d := NewDispatcher(Config{}, testLogger())
	_, err := d.Dispatch(context.Background(), testRequest())
	if !errors.Is(err, ErrAllEndpointsFailed) {
		t.Errorf("expected ErrAllEndpointsFailed, got %v", err)
	}
}

func TestChatTransport_PayloadShape(t *testing.T) {
	var got chatRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode payload: %v", err)
		}
		json.NewEncoder(w).Encode(map[string]any{
			"choices": []map[string]any{{"message": map[string]any{"content": "ok"}}},
		})
	}))
	defer server.Close()

	tr := &chatTransport{
		endpoint: Endpoint{Name: "chat", URL: server.URL},
		model:    "llava",
		client:   server.Client(),
	}

	req := testRequest()
	req.Options = CaptureOptions{Instruction: "what is this", MaxTokens: 300, Temperature: 0.2}

	raw, err := tr.Invoke(context.Background(), req)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != "ok" {
		t.Errorf("expected ok, got %q", raw)
	}
	if got.Model != "llava" || got.MaxTokens != 300 {
		t.Errorf("unexpected payload: %+v", got)
	}
	if len(got.Messages) != 1 || len(got.Messages[0].Content) != 2 {
		t.Fatalf("expected one message with text+image, got %+v", got.Messages)
	}
	if got.Messages[0].Content[0].Text != "what is this" {
		t.Errorf("instruction not forwarded: %+v", got.Messages[0].Content[0])
	}
	if got.Messages[0].Content[1].ImageURL == nil {
		t.Error("expected image_url content part")
	}
}

func TestGenerateTransport_DefaultInstruction(t *testing.T) {
	var got generateRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewDecoder(r.Body).Decode(&got)
		json.NewEncoder(w).Encode(map[string]string{"response": "a lamp"})
	}))
	defer server.Close()

	tr := &generateTransport{
		endpoint: Endpoint{Name: "generate", URL: server.URL},
		model:    "llava",
		client:   server.Client(),
	}

	raw, err := tr.Invoke(context.Background(), testRequest())
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if raw != "a lamp" {
		t.Errorf("expected response text, got %q", raw)
	}
	if got.Prompt != defaultInstruction {
		t.Errorf("expected default instruction, got %q", got.Prompt)
	}
	if got.Stream {
		t.Error("stream must be false")
	}
	if len(got.Images) != 1 {
		t.Errorf("expected one image, got %d", len(got.Images))
	}
}

func TestAnalyzeTransport_EmptyBodyIsError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{})
	}))
	defer server.Close()

	tr := &analyzeTransport{
		endpoint: Endpoint{Name: "analyze", URL: server.URL},
		client:   server.Client(),
	}

	if _, err := tr.Invoke(context.Background(), testRequest()); err == nil {
		t.Error("expected error on empty analyze response")
	}
}

func TestNewTransport_KindSelection(t *testing.T) {
	client := &http.Client{}
	if _, ok := newTransport(Endpoint{Kind: "generate"}, "m", client).(*generateTransport); !ok {
		t.Error("expected generateTransport")
	}
	if _, ok := newTransport(Endpoint{Kind: "analyze"}, "m", client).(*analyzeTransport); !ok {
		t.Error("expected analyzeTransport")
	}
	if _, ok := newTransport(Endpoint{Kind: ""}, "m", client).(*chatTransport); !ok {
		t.Error("expected chatTransport for unknown kind")
	}
}
