package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"loom/internal/config"
	"loom/internal/notifications"
	"loom/internal/store"
)

func testRequest() *store.Request {
	return &store.Request{
		ID:          "req-1",
		RequestType: store.TypeVideoAd,
		Status:      store.StatusIntake,
		Title:       "Spring launch spot",
	}
}

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	cfg.Notifications.NtfyTopic = ""
	svc := notifications.NewService(&cfg)
	if err := svc.NotifyPublished(context.Background(), testRequest()); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	tests := []struct {
		name           string
		notify         func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "request received",
			notify: func(svc notifications.Service) error {
				return svc.NotifyRequestReceived(context.Background(), testRequest())
			},
			expectTitle:   "Loom - Request Received",
			expectMessage: "New video_ad request: Spring launch spot",
			expectTags:    "loom,intake,received",
		},
		{
			name: "published",
			notify: func(svc notifications.Service) error {
				return svc.NotifyPublished(context.Background(), testRequest())
			},
			expectTitle:    "Loom - Published",
			expectMessage:  "Published: Spring launch spot",
			expectTags:     "loom,request,published",
			expectPriority: "high",
		},
		{
			name: "stalled",
			notify: func(svc notifications.Service) error {
				return svc.NotifyStalled(context.Background(), testRequest(), "Video production", "retries exhausted")
			},
			expectTitle:    "Loom - Request Stalled",
			expectMessage:  "Request stalled: Spring launch spot\nTask: Video production\nReason: retries exhausted",
			expectTags:     "loom,request,stalled",
			expectPriority: "high",
		},
		{
			name: "error",
			notify: func(svc notifications.Service) error {
				return svc.NotifyError(context.Background(), errors.New("engine unreachable"), "dispatch")
			},
			expectTitle:    "Loom - Error",
			expectMessage:  "Error with dispatch: engine unreachable",
			expectTags:     "loom,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var captured struct {
				title    string
				tags     string
				priority string
				body     string
			}

			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				if r.Method != http.MethodPost {
					t.Fatalf("unexpected method: %s", r.Method)
				}
				captured.title = r.Header.Get("Title")
				captured.tags = r.Header.Get("Tags")
				captured.priority = r.Header.Get("Priority")
				body, err := io.ReadAll(r.Body)
				if err != nil {
					t.Fatalf("read body: %v", err)
				}
				captured.body = string(body)
				_ = r.Body.Close()
				w.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeout = 5

			svc := notifications.NewService(&cfg)
			if err := tc.notify(svc); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}

			if captured.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, captured.title)
			}
			if captured.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, captured.body)
			}
			if captured.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, captured.tags)
			}
			if captured.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, captured.priority)
			}
		})
	}
}

func TestNtfyServiceHonorsCategoryToggles(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		t.Fatalf("unexpected call for suppressed category: %s", r.URL.String())
	}))
	defer server.Close()

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL
	cfg.Notifications.Intake = false
	cfg.Notifications.Published = false
	cfg.Notifications.Stalled = false
	cfg.Notifications.Errors = false

	svc := notifications.NewService(&cfg)
	if err := svc.NotifyRequestReceived(context.Background(), testRequest()); err != nil {
		t.Fatalf("suppressed intake notification errored: %v", err)
	}
	if err := svc.NotifyPublished(context.Background(), testRequest()); err != nil {
		t.Fatalf("suppressed publish notification errored: %v", err)
	}
	if err := svc.NotifyStalled(context.Background(), testRequest(), "", ""); err != nil {
		t.Fatalf("suppressed stall notification errored: %v", err)
	}
	if err := svc.NotifyError(context.Background(), errors.New("x"), "y"); err != nil {
		t.Fatalf("suppressed error notification errored: %v", err)
	}
}
