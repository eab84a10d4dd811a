package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

var (
	_ Embedder  = (*OpenAIClient)(nil)
	_ Responder = (*OpenAIClient)(nil)
)

const (
	defaultBatchSize = 64
	defaultTimeout   = 30 * time.Second
)

type Config struct {
	Endpoint          string
	EmbeddingEndpoint string
	APIKey            string
	DefaultModel      string
	EmbeddingModel    string
	Dimensions        int
	BatchSize         int
	// RequestsPerSecond paces outbound calls; 0 disables pacing.
	RequestsPerSecond float64
	Timeout           time.Duration
	SystemPrompt      string
}

type OpenAIClient struct {
	Endpoint          string
	EmbeddingEndpoint string
	APIKey            string
	HTTPClient        *http.Client
	systemPrompt      string
	defaultModelName  string
	embeddingModel    string
	dimensions        int
	batchSize         int
	limiter           *rate.Limiter
}

type OpenAIEmbeddingRequest struct {
	Model string   `json:"model"`
	Input []string `json:"input"`
}

type OpenAIRequest struct {
	Model       string          `json:"model"`
	Messages    []OpenAIMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature"`
}

type OpenAIMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type OpenAIEmbeddingResponseData struct {
	Embedding []float32 `json:"embedding"`
	Index     int       `json:"index"`
}

type OpenAIEmbeddingResponse struct {
	Data []OpenAIEmbeddingResponseData `json:"data"`
}

type OpenAIResponse struct {
	Choices []struct {
		Message OpenAIMessage `json:"message"`
	} `json:"choices"`
}

func NewOpenAIClient(cfg Config) (*OpenAIClient, error) {
	if cfg.EmbeddingEndpoint == "" {
		return nil, fmt.Errorf("embedding endpoint is required")
	}
	if cfg.Dimensions <= 0 {
		return nil, fmt.Errorf("embedding dimensions must be positive, got %d", cfg.Dimensions)
	}

	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	batchSize := cfg.BatchSize
	if batchSize <= 0 {
		batchSize = defaultBatchSize
	}
	embeddingModel := cfg.EmbeddingModel
	if embeddingModel == "" {
		embeddingModel = cfg.DefaultModel
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RequestsPerSecond > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), 1)
	}

	return &OpenAIClient{
		Endpoint:          cfg.Endpoint,
		EmbeddingEndpoint: cfg.EmbeddingEndpoint,
		APIKey:            cfg.APIKey,
		HTTPClient: &http.Client{
			Timeout: timeout,
		},
		systemPrompt:     cfg.SystemPrompt,
		defaultModelName: cfg.DefaultModel,
		embeddingModel:   embeddingModel,
		dimensions:       cfg.Dimensions,
		batchSize:        batchSize,
		limiter:          limiter,
	}, nil
}

func (c *OpenAIClient) Dimensions() int { return c.dimensions }

// ModelName identifies the embedding space, e.g. "all-MiniLM-L6-v2/384".
func (c *OpenAIClient) ModelName() string {
	return fmt.Sprintf("%s/%d", c.embeddingModel, c.dimensions)
}

func (c *OpenAIClient) Embed(ctx context.Context, text string) ([]float32, error) {
	vecs, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vecs[0], nil
}

// EmbedBatch embeds texts in request-sized batches, preserving input order.
func (c *OpenAIClient) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	if len(texts) == 0 {
		return nil, nil
	}

	results := make([][]float32, 0, len(texts))
	for start := 0; start < len(texts); start += c.batchSize {
		end := min(start+c.batchSize, len(texts))

		vecs, err := c.embedRequest(ctx, texts[start:end])
		if err != nil {
			return nil, fmt.Errorf("failed to embed batch %d-%d: %w", start, end, err)
		}
		results = append(results, vecs...)
	}

	return results, nil
}

func (c *OpenAIClient) embedRequest(ctx context.Context, texts []string) ([][]float32, error) {
	data, err := json.Marshal(OpenAIEmbeddingRequest{
		Model: c.embeddingModel,
		Input: texts,
	})
	if err != nil {
		return nil, err
	}

	body, err := c.post(ctx, c.EmbeddingEndpoint, data)
	if err != nil {
		return nil, err
	}

	var embeddingResponse OpenAIEmbeddingResponse
	if err := json.Unmarshal(body, &embeddingResponse); err != nil {
		return nil, fmt.Errorf("failed to parse embedding response: %w", err)
	}

	if len(embeddingResponse.Data) != len(texts) {
		return nil, fmt.Errorf("expected %d embeddings, got %d", len(texts), len(embeddingResponse.Data))
	}

	vecs := make([][]float32, len(texts))
	for _, d := range embeddingResponse.Data {
		if d.Index < 0 || d.Index >= len(texts) || vecs[d.Index] != nil {
			return nil, fmt.Errorf("invalid embedding index: %d", d.Index)
		}
		if len(d.Embedding) != c.dimensions {
			return nil, fmt.Errorf("embedding has %d dimensions, expected %d", len(d.Embedding), c.dimensions)
		}
		vecs[d.Index] = d.Embedding
	}

	return vecs, nil
}

func (c *OpenAIClient) SendPrompt(ctx context.Context, prompt string, modelName string) (string, error) {
	if c.Endpoint == "" {
		return "", fmt.Errorf("no chat endpoint configured")
	}

	messages := make([]OpenAIMessage, 0, 2)
	if c.systemPrompt != "" {
		messages = append(messages, OpenAIMessage{Role: "system", Content: c.systemPrompt})
	}
	messages = append(messages, OpenAIMessage{Role: "user", Content: prompt})

	if modelName == "" {
		modelName = c.defaultModelName
	}

	data, err := json.Marshal(OpenAIRequest{
		Model:    modelName,
		Messages: messages,
	})
	if err != nil {
		return "", err
	}

	body, err := c.post(ctx, c.Endpoint, data)
	if err != nil {
		return "", err
	}

	var llmResp OpenAIResponse
	if err := json.Unmarshal(body, &llmResp); err != nil {
		return "", fmt.Errorf("failed to parse chat response: %w", err)
	}

	if len(llmResp.Choices) == 0 {
		return "", fmt.Errorf("no response from LLM server")
	}

	return llmResp.Choices[0].Message.Content, nil
}

func (c *OpenAIClient) post(ctx context.Context, url string, data []byte) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}

	req.Header.Set("Content-Type", "application/json")
	if c.APIKey != "" {
		req.Header.Set("Authorization", fmt.Sprintf("Bearer %s", c.APIKey))
	}

	started := time.Now()
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response: %w", err)
	}

	slog.Debug("llm request", "url", url, "status", resp.StatusCode, "elapsed", time.Since(started))

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("LLM server returned status: %s", resp.Status)
	}

	return body, nil
}
