package notify

import (
	"bufio"
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"mediagen/internal/domain"
	"mediagen/internal/infra"
)

func TestRenderLocalizes(t *testing.T) {
	cases := []struct {
		name   string
		notice Notice
		cost   int
		want   string
	}{
		{name: "completed en", notice: Notice{Kind: KindCompleted, GenerationKind: domain.KindImage, Locale: "en"}, want: "Your image is ready."},
		{name: "completed id", notice: Notice{Kind: KindCompleted, GenerationKind: domain.KindTranscript, Locale: "id-ID"}, want: "naskah kamu sudah siap."},
		{name: "credits", notice: Notice{Kind: KindInsufficientCredits, Locale: "en-US"}, cost: 10, want: "Not enough credits: 10 required."},
		{name: "failed", notice: Notice{Kind: KindFailed, Detail: "generation timed out waiting for the provider"}, want: "Generation failed: generation timed out waiting for the provider"},
		{name: "unknown locale falls back", notice: Notice{Kind: KindCancelled, Locale: "fr"}, want: "Generation cancelled."},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got := Render(tc.notice, tc.cost).Text
			if got != tc.want {
				t.Fatalf("text = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestMultiDeliversToAll(t *testing.T) {
	var got []string
	m := Multi{
		SinkFunc(func(_ context.Context, n Notice) { got = append(got, "a:"+string(n.Kind)) }),
		nil,
		SinkFunc(func(_ context.Context, n Notice) { got = append(got, "b:"+string(n.Kind)) }),
	}
	m.Notify(context.Background(), Notice{Kind: KindCancelled})
	if strings.Join(got, ",") != "a:cancelled,b:cancelled" {
		t.Fatalf("got %v", got)
	}
}

func TestHubPublishIsPerUser(t *testing.T) {
	hub := NewHub(infra.NopLogger())
	a, leaveA := hub.Subscribe("user-a")
	_, leaveB := hub.Subscribe("user-b")
	defer leaveB()

	hub.Notify(context.Background(), Notice{Kind: KindCompleted, UserID: "user-a"})
	select {
	case ev := <-a.outbound:
		if ev.Type != EventNotice {
			t.Fatalf("type = %s", ev.Type)
		}
	default:
		t.Fatalf("expected event for user-a")
	}

	leaveA()
	leaveA()
	if hub.Subscribers("user-a") != 0 {
		t.Fatalf("unsubscribe did not remove client")
	}
}

func TestHubStreamWritesEvents(t *testing.T) {
	hub := NewHub(infra.NopLogger())
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c, leave := hub.Subscribe("user-a")
		defer leave()
		hub.Stream(w, r, c, &Event{Type: EventSnapshot, Data: map[string]string{"status": "idle"}})
	}))
	defer srv.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, srv.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("request: %v", err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("content type = %q", ct)
	}

	reader := bufio.NewReader(resp.Body)
	line, err := reader.ReadString('\n')
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	if strings.TrimSpace(line) != "event: snapshot" {
		t.Fatalf("first line = %q", line)
	}
	line, _ = reader.ReadString('\n')
	if !strings.Contains(line, `"status":"idle"`) {
		t.Fatalf("data line = %q", line)
	}
}
