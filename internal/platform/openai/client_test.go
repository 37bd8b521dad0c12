package openai

import (
	"bytes"
	"encoding/json"
	"errors"
	"net/http"
	"testing"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	pkgerrors "github.com/igasovic/PKM-sub000/internal/pkg/errors"
	"github.com/igasovic/PKM-sub000/internal/platform/httpx"
)

func TestClampTimeout(t *testing.T) {
	cases := map[time.Duration]time.Duration{
		0:                      DefaultTimeout,
		-time.Second:           DefaultTimeout,
		500 * time.Millisecond: MinTimeout,
		5 * time.Second:        5 * time.Second,
	}
	for in, want := range cases {
		if got := ClampTimeout(in); got != want {
			t.Fatalf("ClampTimeout(%v) = %v want %v", in, got, want)
		}
	}
}

func TestEncodeBatchFile(t *testing.T) {
	raw, err := EncodeBatchFile([]BatchRequest{
		{CustomID: "entry_1", Model: "m", System: "s", User: "u1"},
		{CustomID: "entry_2", Model: "m", System: "s", User: "u2"},
	})
	if err != nil {
		t.Fatalf("EncodeBatchFile: %v", err)
	}
	lines := bytes.Split(bytes.TrimSpace(raw), []byte("\n"))
	if len(lines) != 2 {
		t.Fatalf("expected 2 lines, got %d", len(lines))
	}
	var first struct {
		CustomID string `json:"custom_id"`
		Method   string `json:"method"`
		URL      string `json:"url"`
		Body     struct {
			Model    string `json:"model"`
			Messages []struct {
				Role    string `json:"role"`
				Content string `json:"content"`
			} `json:"messages"`
		} `json:"body"`
	}
	if err := json.Unmarshal(lines[0], &first); err != nil {
		t.Fatalf("decode line: %v", err)
	}
	if first.CustomID != "entry_1" || first.Method != http.MethodPost || first.URL != "/v1/chat/completions" {
		t.Fatalf("unexpected line: %+v", first)
	}
	if first.Body.Model != "m" || len(first.Body.Messages) != 2 || first.Body.Messages[1].Content != "u1" {
		t.Fatalf("unexpected body: %+v", first.Body)
	}
}

func TestAPIErrorClassification(t *testing.T) {
	err := apiError("batch_create", &goopenai.APIError{HTTPStatusCode: 503, Message: "overloaded"})
	var be *BatchAPIError
	if !errors.As(err, &be) || be.StatusCode != 503 || be.Message != "overloaded" || be.Op != "batch_create" {
		t.Fatalf("unexpected error: %#v", err)
	}
	if !errors.Is(err, pkgerrors.ErrBatchAPI) {
		t.Fatalf("expected ErrBatchAPI kind")
	}
	if !httpx.IsRetryableError(err) {
		t.Fatalf("503 should be retryable")
	}
	bad := apiError("file_upload", &goopenai.APIError{HTTPStatusCode: 400, Message: "bad file"})
	if httpx.IsRetryableError(bad) {
		t.Fatalf("400 should not be retryable")
	}
	if apiError("x", nil) != nil {
		t.Fatalf("nil stays nil")
	}
}

func TestNewClientRequiresKey(t *testing.T) {
	if _, err := NewClient(Config{}, nil); err == nil {
		t.Fatalf("expected missing key error")
	}
}
