package notifications_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"studypair/internal/config"
	"studypair/internal/notifications"
)

func TestNewServiceReturnsNoopWhenTopicMissing(t *testing.T) {
	cfg := config.Default()
	svc := notifications.NewService(&cfg)
	if notifications.Enabled(svc) {
		t.Fatal("expected noop service without a topic")
	}
	if err := svc.NotifyFault(context.Background(), "batch", errors.New("boom")); err != nil {
		t.Fatalf("expected noop notifier to return nil, got %v", err)
	}
}

type captured struct {
	title    string
	tags     string
	priority string
	body     string
}

func newCaptureServer(t *testing.T, status int) (*httptest.Server, *captured) {
	t.Helper()
	var got captured
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("unexpected method: %s", r.Method)
		}
		got.title = r.Header.Get("Title")
		got.tags = r.Header.Get("Tags")
		got.priority = r.Header.Get("Priority")
		body, err := io.ReadAll(r.Body)
		if err != nil {
			t.Errorf("read body: %v", err)
		}
		got.body = string(body)
		w.WriteHeader(status)
	}))
	t.Cleanup(server.Close)
	return server, &got
}

func TestNtfyServiceFormatsPayloads(t *testing.T) {
	const batchID = "3f2a9c1e-0000-4000-8000-000000000000"
	tests := []struct {
		name           string
		send           func(notifications.Service) error
		expectTitle    string
		expectMessage  string
		expectTags     string
		expectPriority string
	}{
		{
			name: "batch started",
			send: func(s notifications.Service) error {
				return s.NotifyBatchStarted(context.Background(), batchID, 4)
			},
			expectTitle:   "studypair - Batch Started",
			expectMessage: "Dispatching 4 pair(s) (batch 3f2a9c1e)",
			expectTags:    "studypair,batch,started",
		},
		{
			name: "batch completed",
			send: func(s notifications.Service) error {
				return s.NotifyBatchCompleted(context.Background(), notifications.BatchSummary{
					BatchID: batchID, Pairs: 4, Processed: 4, Duration: 90 * time.Second,
				})
			},
			expectTitle:   "studypair - Batch Complete",
			expectMessage: "4 of 4 pair(s) dispatched in 1m30s (batch 3f2a9c1e)",
			expectTags:    "studypair,batch,completed",
		},
		{
			name: "batch completed with skips",
			send: func(s notifications.Service) error {
				return s.NotifyBatchCompleted(context.Background(), notifications.BatchSummary{
					BatchID: batchID, Pairs: 3, Processed: 2, Skipped: 1, Duration: 2 * time.Second,
				})
			},
			expectTitle:   "studypair - Batch Complete (with skips)",
			expectMessage: "2 of 3 pair(s) dispatched in 2s, 1 skipped (batch 3f2a9c1e)",
			expectTags:    "studypair,batch,completed",
		},
		{
			name: "fault",
			send: func(s notifications.Service) error {
				return s.NotifyFault(context.Background(), batchID, errors.New("launch recon: not found"))
			},
			expectTitle:    "studypair - Batch Failed",
			expectMessage:  "Batch 3f2a9c1e stopped: launch recon: not found",
			expectTags:     "studypair,error,alert",
			expectPriority: "high",
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			server, got := newCaptureServer(t, http.StatusOK)

			cfg := config.Default()
			cfg.Notifications.NtfyTopic = server.URL
			cfg.Notifications.RequestTimeoutSeconds = 5

			if err := tc.send(notifications.NewService(&cfg)); err != nil {
				t.Fatalf("notification returned error: %v", err)
			}
			if got.title != tc.expectTitle {
				t.Fatalf("expected title %q, got %q", tc.expectTitle, got.title)
			}
			if got.body != tc.expectMessage {
				t.Fatalf("expected message %q, got %q", tc.expectMessage, got.body)
			}
			if got.tags != tc.expectTags {
				t.Fatalf("expected tags %q, got %q", tc.expectTags, got.tags)
			}
			if got.priority != tc.expectPriority {
				t.Fatalf("expected priority %q, got %q", tc.expectPriority, got.priority)
			}
		})
	}
}

func TestNtfyServiceReportsHTTPErrors(t *testing.T) {
	server, _ := newCaptureServer(t, http.StatusForbidden)

	cfg := config.Default()
	cfg.Notifications.NtfyTopic = server.URL

	err := notifications.NewService(&cfg).TestNotification(context.Background())
	if err == nil || !strings.Contains(err.Error(), "ntfy returned 403") {
		t.Fatalf("expected status error, got %v", err)
	}
}
