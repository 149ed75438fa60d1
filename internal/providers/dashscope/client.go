package dashscope

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"mediagen/internal/infra"
)

// ErrMissingAPIKey indicates that the client was configured without credentials.
var ErrMissingAPIKey = errors.New("dashscope: api key is required")

// Options configures the DashScope client.
type Options struct {
	APIKey            string
	BaseURL           string
	ImageModel        string
	VideoModel        string
	TextModel         string
	HTTPClient        *http.Client
	Logger            *infra.Logger
	RequestTimeout    time.Duration
	RequestsPerSecond float64
}

// Client performs HTTP calls to the DashScope generation APIs. Image and text
// generation answer synchronously; video synthesis runs as an async task.
type Client struct {
	apiKey     string
	baseURL    string
	imageModel string
	videoModel string
	textModel  string
	httpClient *http.Client
	limiter    *rate.Limiter
	logger     *infra.Logger
}

type errorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	RequestID string `json:"request_id"`
}

// NewClient constructs a client with sane defaults and injected dependencies.
func NewClient(opts Options) (*Client, error) {
	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.RequestTimeout
		if timeout <= 0 {
			timeout = 45 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	baseURL := strings.TrimRight(opts.BaseURL, "/")
	if baseURL == "" {
		baseURL = "https://dashscope-intl.aliyuncs.com/api/v1"
	}
	var logger *infra.Logger
	if opts.Logger != nil {
		logger = opts.Logger
	} else {
		l := zerolog.New(io.Discard)
		logger = &l
	}
	var limiter *rate.Limiter
	if opts.RequestsPerSecond > 0 {
		burst := int(opts.RequestsPerSecond)
		if burst < 1 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(opts.RequestsPerSecond), burst)
	}
	return &Client{
		apiKey:     strings.TrimSpace(opts.APIKey),
		baseURL:    baseURL,
		imageModel: defaultString(opts.ImageModel, "qwen-image-plus"),
		videoModel: defaultString(opts.VideoModel, "wan2.1-t2v-turbo"),
		textModel:  defaultString(opts.TextModel, "qwen-plus"),
		httpClient: httpClient,
		limiter:    limiter,
		logger:     logger,
	}, nil
}

// HasCredentials reports whether the client can perform remote calls.
func (c *Client) HasCredentials() bool {
	return c.apiKey != ""
}

// do sends one JSON request and decodes a 2xx body into out.
func (c *Client) do(ctx context.Context, method, path string, async bool, in, out any) error {
	if !c.HasCredentials() {
		return ErrMissingAPIKey
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return fmt.Errorf("dashscope: rate limit wait: %w", err)
		}
	}
	var body io.Reader
	if in != nil {
		raw, err := json.Marshal(in)
		if err != nil {
			return fmt.Errorf("dashscope: encode request: %w", err)
		}
		body = bytes.NewReader(raw)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return fmt.Errorf("dashscope: build request: %w", err)
	}
	if in != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	if async {
		req.Header.Set("X-DashScope-Async", "enable")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("dashscope: http request: %w", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("dashscope: read response: %w", err)
	}
	if resp.StatusCode >= 300 {
		var detail errorResponse
		if err := json.Unmarshal(raw, &detail); err == nil && detail.Message != "" {
			return fmt.Errorf("dashscope: %s (%s)", detail.Message, detail.Code)
		}
		return fmt.Errorf("dashscope: status %d: %s", resp.StatusCode, strings.TrimSpace(string(raw)))
	}
	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("dashscope: decode response: %w", err)
	}
	return nil
}

func defaultString(v, fallback string) string {
	if v = strings.TrimSpace(v); v != "" {
		return v
	}
	return fallback
}
