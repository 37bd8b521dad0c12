package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/igasovic/PKM-sub000/internal/observability"
	"github.com/igasovic/PKM-sub000/internal/platform/httpx"
	"github.com/igasovic/PKM-sub000/internal/platform/logger"
)

const (
	DefaultTimeout = 60 * time.Second
	MinTimeout     = time.Second

	batchEndpoint    = "/v1/chat/completions"
	completionWindow = "24h"
)

type Config struct {
	APIKey     string
	BaseURL    string
	Timeout    time.Duration
	MaxRetries int
}

// CompletionRequest is a single system+user chat completion that must
// answer with a JSON object.
type CompletionRequest struct {
	Model  string
	System string
	User   string
}

// BatchRequest is one line of a batch input file.
type BatchRequest struct {
	CustomID string
	Model    string
	System   string
	User     string
}

// RemoteBatch is the upstream view of a batch job.
type RemoteBatch struct {
	ID           string
	Status       string
	InputFileID  string
	OutputFileID *string
	ErrorFileID  *string
	Total        int
	Completed    int
	Failed       int
}

// Client is the subset of the OpenAI API the Tier-1 flows use.
type Client interface {
	Complete(ctx context.Context, req CompletionRequest) (string, error)
	UploadBatchFile(ctx context.Context, name string, requests []BatchRequest) (string, error)
	CreateBatch(ctx context.Context, inputFileID string, metadata map[string]any) (RemoteBatch, error)
	RetrieveBatch(ctx context.Context, batchID string) (RemoteBatch, error)
	FileContent(ctx context.Context, fileID string) ([]byte, error)
}

type client struct {
	log        *logger.Logger
	api        *goopenai.Client
	timeout    time.Duration
	maxRetries int
}

func NewClient(cfg Config, baseLog *logger.Logger) (Client, error) {
	apiKey := strings.TrimSpace(cfg.APIKey)
	if apiKey == "" {
		return nil, fmt.Errorf("missing OPENAI_API_KEY")
	}
	conf := goopenai.DefaultConfig(apiKey)
	if base := strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/"); base != "" {
		if !strings.HasSuffix(base, "/v1") {
			base += "/v1"
		}
		conf.BaseURL = base
	}
	timeout := ClampTimeout(cfg.Timeout)
	conf.HTTPClient = &http.Client{Timeout: timeout + 5*time.Second}

	maxRetries := cfg.MaxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	return &client{
		log:        baseLog.With("client", "OpenAIClient"),
		api:        goopenai.NewClientWithConfig(conf),
		timeout:    timeout,
		maxRetries: maxRetries,
	}, nil
}

// ClampTimeout applies the default and the 1s floor.
func ClampTimeout(d time.Duration) time.Duration {
	if d <= 0 {
		return DefaultTimeout
	}
	if d < MinTimeout {
		return MinTimeout
	}
	return d
}

// call runs fn with a per-attempt timeout, retrying retryable failures with
// jittered exponential backoff.
func (c *client) call(ctx context.Context, op string, fn func(ctx context.Context) error) error {
	backoff := 1 * time.Second
	start := time.Now()
	for attempt := 0; attempt <= c.maxRetries; attempt++ {
		if ctx.Err() != nil {
			return apiError(op, ctx.Err())
		}
		attemptCtx, cancel := context.WithTimeout(ctx, c.timeout)
		err := apiError(op, fn(attemptCtx))
		cancel()
		if err == nil {
			observability.Current().ObserveLLMRequest(op, "ok", time.Since(start))
			return nil
		}
		if !httpx.IsRetryableError(err) || attempt == c.maxRetries {
			observability.Current().ObserveLLMRequest(op, "error", time.Since(start))
			return err
		}
		sleepFor := httpx.JitterSleep(backoff)
		c.log.Warn("OpenAI request retrying",
			"op", op,
			"attempt", attempt+1,
			"max_retries", c.maxRetries,
			"sleep", sleepFor.String(),
			"error", err.Error(),
		)
		select {
		case <-ctx.Done():
			return apiError(op, ctx.Err())
		case <-time.After(sleepFor):
		}
		backoff *= 2
		if backoff > 10*time.Second {
			backoff = 10 * time.Second
		}
	}
	return fmt.Errorf("unreachable retry loop")
}

func chatRequest(model, system, user string) goopenai.ChatCompletionRequest {
	return goopenai.ChatCompletionRequest{
		Model: model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: system},
			{Role: goopenai.ChatMessageRoleUser, Content: user},
		},
		ResponseFormat: &goopenai.ChatCompletionResponseFormat{
			Type: goopenai.ChatCompletionResponseFormatTypeJSONObject,
		},
	}
}

func (c *client) Complete(ctx context.Context, req CompletionRequest) (string, error) {
	var out string
	err := c.call(ctx, "chat_completion", func(ctx context.Context) error {
		resp, err := c.api.CreateChatCompletion(ctx, chatRequest(req.Model, req.System, req.User))
		if err != nil {
			return err
		}
		if len(resp.Choices) == 0 {
			return fmt.Errorf("empty choices")
		}
		out = resp.Choices[0].Message.Content
		return nil
	})
	return out, err
}

type batchLine struct {
	CustomID string                         `json:"custom_id"`
	Method   string                         `json:"method"`
	URL      string                         `json:"url"`
	Body     goopenai.ChatCompletionRequest `json:"body"`
}

// EncodeBatchFile renders requests as the JSONL batch input format.
func EncodeBatchFile(requests []BatchRequest) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	for _, r := range requests {
		line := batchLine{
			CustomID: r.CustomID,
			Method:   http.MethodPost,
			URL:      batchEndpoint,
			Body:     chatRequest(r.Model, r.System, r.User),
		}
		if err := enc.Encode(line); err != nil {
			return nil, fmt.Errorf("encode batch line %s: %w", r.CustomID, err)
		}
	}
	return buf.Bytes(), nil
}

func (c *client) UploadBatchFile(ctx context.Context, name string, requests []BatchRequest) (string, error) {
	payload, err := EncodeBatchFile(requests)
	if err != nil {
		return "", err
	}
	var fileID string
	err = c.call(ctx, "file_upload", func(ctx context.Context) error {
		f, err := c.api.CreateFileBytes(ctx, goopenai.FileBytesRequest{
			Name:    name,
			Bytes:   payload,
			Purpose: goopenai.PurposeBatch,
		})
		if err != nil {
			return err
		}
		fileID = f.ID
		return nil
	})
	return fileID, err
}

func (c *client) CreateBatch(ctx context.Context, inputFileID string, metadata map[string]any) (RemoteBatch, error) {
	var out RemoteBatch
	err := c.call(ctx, "batch_create", func(ctx context.Context) error {
		resp, err := c.api.CreateBatch(ctx, goopenai.CreateBatchRequest{
			InputFileID:      inputFileID,
			Endpoint:         goopenai.BatchEndpointChatCompletions,
			CompletionWindow: completionWindow,
			Metadata:         metadata,
		})
		if err != nil {
			return err
		}
		out = remoteBatch(resp)
		return nil
	})
	return out, err
}

func (c *client) RetrieveBatch(ctx context.Context, batchID string) (RemoteBatch, error) {
	var out RemoteBatch
	err := c.call(ctx, "batch_retrieve", func(ctx context.Context) error {
		resp, err := c.api.RetrieveBatch(ctx, batchID)
		if err != nil {
			return err
		}
		out = remoteBatch(resp)
		return nil
	})
	return out, err
}

func (c *client) FileContent(ctx context.Context, fileID string) ([]byte, error) {
	var out []byte
	err := c.call(ctx, "file_content", func(ctx context.Context) error {
		content, err := c.api.GetFileContent(ctx, fileID)
		if err != nil {
			return err
		}
		defer content.Close()
		raw, err := io.ReadAll(content)
		if err != nil {
			return err
		}
		out = raw
		return nil
	})
	return out, err
}

func remoteBatch(resp goopenai.BatchResponse) RemoteBatch {
	return RemoteBatch{
		ID:           resp.ID,
		Status:       string(resp.Status),
		InputFileID:  resp.InputFileID,
		OutputFileID: resp.OutputFileID,
		ErrorFileID:  resp.ErrorFileID,
		Total:        resp.RequestCounts.Total,
		Completed:    resp.RequestCounts.Completed,
		Failed:       resp.RequestCounts.Failed,
	}
}
