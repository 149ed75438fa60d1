package dashscope

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"testing"

	"mediagen/internal/domain"
	"mediagen/internal/providers"
)

func TestSubmitImageSynchronous(t *testing.T) {
	transport := newCaptureTransport()
	client := newTestClient(t, transport)
	transport.setJSONResponse(http.MethodPost, "/api/v1"+pathImage, http.StatusOK, map[string]any{
		"output": map[string]any{
			"choices": []any{
				map[string]any{
					"message": map[string]any{
						"content": []any{
							map[string]any{"image": "https://example.com/generated/out.png"},
						},
					},
				},
			},
		},
		"usage":      map[string]any{"width": 1024, "height": 1024},
		"request_id": "req-123",
	})

	sub, err := client.Submit(context.Background(), providers.Payload{
		Kind:   domain.KindImage,
		Prompt: "  a red bicycle ",
		Width:  1024,
		Height: 1024,
	})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Async() {
		t.Fatalf("image submission should be synchronous")
	}
	if got := sub.Result.PrimaryURL(); got != "https://example.com/generated/out.png" {
		t.Fatalf("url = %q", got)
	}
	if transport.lastHeader.Get("X-DashScope-Async") != "" {
		t.Fatalf("image request must not be async")
	}
	if auth := transport.lastHeader.Get("Authorization"); auth != "Bearer test" {
		t.Fatalf("authorization = %q", auth)
	}

	var payload map[string]any
	if err := json.Unmarshal(transport.lastBody, &payload); err != nil {
		t.Fatalf("decode payload: %v", err)
	}
	if payload["model"] != "qwen-image-plus" {
		t.Fatalf("model = %v", payload["model"])
	}
	params := payload["parameters"].(map[string]any)
	if params["size"] != "1024*1024" {
		t.Fatalf("size = %v", params["size"])
	}
	messages := payload["input"].(map[string]any)["messages"].([]any)
	text := messages[0].(map[string]any)["content"].([]any)[0].(map[string]any)["text"]
	if text != "a red bicycle" {
		t.Fatalf("prompt = %v", text)
	}
}

func TestSubmitTranscript(t *testing.T) {
	transport := newCaptureTransport()
	client := newTestClient(t, transport)
	transport.setJSONResponse(http.MethodPost, "/api/v1"+pathText, http.StatusOK, map[string]any{
		"output": map[string]any{
			"choices": []any{
				map[string]any{"message": map[string]any{"role": "assistant", "content": " Hello there. \n"}},
			},
		},
	})

	sub, err := client.Submit(context.Background(), providers.Payload{Kind: domain.KindTranscript, Prompt: "coffee shop", Locale: "id"})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if sub.Async() || sub.Result.Text != "Hello there." {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if !strings.Contains(string(transport.lastBody), "Language: id.") {
		t.Fatalf("locale missing from system prompt: %s", transport.lastBody)
	}
}

func TestSubmitVideoReturnsTaskID(t *testing.T) {
	transport := newCaptureTransport()
	client := newTestClient(t, transport)
	transport.setJSONResponse(http.MethodPost, "/api/v1"+pathVideo, http.StatusOK, map[string]any{
		"output": map[string]any{"task_id": "task-42", "task_status": "PENDING"},
	})

	sub, err := client.Submit(context.Background(), providers.Payload{Kind: domain.KindVideo, Prompt: "waves", DurationSeconds: 5})
	if err != nil {
		t.Fatalf("submit: %v", err)
	}
	if !sub.Async() || sub.JobID != "task-42" {
		t.Fatalf("unexpected submission: %+v", sub)
	}
	if transport.lastHeader.Get("X-DashScope-Async") != "enable" {
		t.Fatalf("video request must be async")
	}
}

func TestStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		output map[string]any
		want   providers.State
		url    string
	}{
		{name: "pending", output: map[string]any{"task_status": "PENDING"}, want: providers.StateRunning},
		{name: "running", output: map[string]any{"task_status": "RUNNING"}, want: providers.StateRunning},
		{name: "succeeded", output: map[string]any{"task_status": "SUCCEEDED", "video_url": "https://example.com/v.mp4"}, want: providers.StateSucceeded, url: "https://example.com/v.mp4"},
		{name: "succeeded without url", output: map[string]any{"task_status": "SUCCEEDED"}, want: providers.StateFailed},
		{name: "failed", output: map[string]any{"task_status": "FAILED", "message": "content blocked"}, want: providers.StateFailed},
		{name: "canceled", output: map[string]any{"task_status": "CANCELED"}, want: providers.StateFailed},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			transport := newCaptureTransport()
			client := newTestClient(t, transport)
			transport.setJSONResponse(http.MethodGet, "/api/v1/tasks/task-1", http.StatusOK, map[string]any{"output": tc.output})

			report, err := client.Status(context.Background(), "task-1")
			if err != nil {
				t.Fatalf("status: %v", err)
			}
			if report.State != tc.want {
				t.Fatalf("state = %s, want %s", report.State, tc.want)
			}
			if tc.url != "" && report.Result.PrimaryURL() != tc.url {
				t.Fatalf("url = %q, want %q", report.Result.PrimaryURL(), tc.url)
			}
			if tc.want == providers.StateFailed && report.Message == "" {
				t.Fatalf("failed report needs a message")
			}
		})
	}
}

func TestErrorResponseSurfacesMessage(t *testing.T) {
	transport := newCaptureTransport()
	client := newTestClient(t, transport)
	transport.setJSONResponse(http.MethodPost, "/api/v1"+pathImage, http.StatusBadRequest, map[string]any{
		"code":    "InvalidParameter",
		"message": "size not supported",
	})

	_, err := client.Submit(context.Background(), providers.Payload{Kind: domain.KindImage, Prompt: "x"})
	if err == nil || !strings.Contains(err.Error(), "size not supported") {
		t.Fatalf("expected provider message, got %v", err)
	}
}

func TestMissingAPIKey(t *testing.T) {
	client, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	_, err = client.Submit(context.Background(), providers.Payload{Kind: domain.KindImage, Prompt: "x"})
	if !errors.Is(err, ErrMissingAPIKey) {
		t.Fatalf("expected ErrMissingAPIKey, got %v", err)
	}
}

func newTestClient(t *testing.T, transport *captureTransport) *Client {
	t.Helper()
	client, err := NewClient(Options{
		APIKey:     "test",
		BaseURL:    "https://dashscope.test/api/v1",
		HTTPClient: &http.Client{Transport: transport},
	})
	if err != nil {
		t.Fatalf("new client: %v", err)
	}
	return client
}

type captureTransport struct {
	responses  map[string]responseStub
	lastBody   []byte
	lastHeader http.Header
}

type responseStub struct {
	status int
	body   []byte
}

func newCaptureTransport() *captureTransport {
	return &captureTransport{responses: map[string]responseStub{}}
}

func (c *captureTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	c.lastHeader = req.Header.Clone()
	if req.Body != nil {
		body, err := io.ReadAll(req.Body)
		if err != nil {
			return nil, err
		}
		req.Body.Close()
		c.lastBody = body
	}
	if stub, ok := c.responses[req.Method+" "+req.URL.Path]; ok {
		return &http.Response{
			StatusCode: stub.status,
			Header:     http.Header{"Content-Type": []string{"application/json"}},
			Body:       io.NopCloser(strings.NewReader(string(stub.body))),
		}, nil
	}
	return &http.Response{
		StatusCode: http.StatusNotFound,
		Body:       io.NopCloser(strings.NewReader("not found")),
	}, nil
}

func (c *captureTransport) setJSONResponse(method, path string, status int, payload any) {
	body, _ := json.Marshal(payload)
	c.responses[method+" "+path] = responseStub{status: status, body: body}
}
