package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"studypair/internal/config"
)

const userAgent = "studypair/0.1"

// Service is the notification surface used by the batch runner.
type Service interface {
	NotifyBatchStarted(ctx context.Context, batchID string, pairs int) error
	NotifyBatchCompleted(ctx context.Context, summary BatchSummary) error
	NotifyFault(ctx context.Context, batchID string, err error) error
	TestNotification(ctx context.Context) error
}

// BatchSummary describes a finished batch.
type BatchSummary struct {
	BatchID   string
	Pairs     int
	Processed int
	Skipped   int
	Duration  time.Duration
}

// NewService builds an ntfy-backed service, or a no-op when no topic is set.
func NewService(cfg *config.Config) Service {
	if cfg == nil {
		return noopService{}
	}
	topic := strings.TrimSpace(cfg.Notifications.NtfyTopic)
	if topic == "" {
		return noopService{}
	}
	timeout := cfg.NotifyTimeout()
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc delivers anything.
func Enabled(svc Service) bool {
	_, noop := svc.(noopService)
	return svc != nil && !noop
}

type payload struct {
	title    string
	message  string
	tags     []string
	priority string
}

type ntfyService struct {
	endpoint string
	client   *http.Client
}

func (n *ntfyService) NotifyBatchStarted(ctx context.Context, batchID string, pairs int) error {
	return n.send(ctx, payload{
		title:   "studypair - Batch Started",
		message: fmt.Sprintf("Dispatching %d pair(s) (batch %s)", pairs, shortID(batchID)),
		tags:    []string{"studypair", "batch", "started"},
	})
}

func (n *ntfyService) NotifyBatchCompleted(ctx context.Context, summary BatchSummary) error {
	duration := summary.Duration.Round(time.Second)
	if duration < 0 {
		duration = 0
	}
	title := "studypair - Batch Complete"
	message := fmt.Sprintf("%d of %d pair(s) dispatched in %s", summary.Processed, summary.Pairs, duration)
	if summary.Skipped > 0 {
		title = "studypair - Batch Complete (with skips)"
		message = fmt.Sprintf("%s, %d skipped", message, summary.Skipped)
	}
	return n.send(ctx, payload{
		title:   title,
		message: fmt.Sprintf("%s (batch %s)", message, shortID(summary.BatchID)),
		tags:    []string{"studypair", "batch", "completed"},
	})
}

func (n *ntfyService) NotifyFault(ctx context.Context, batchID string, err error) error {
	reason := "unknown"
	if err != nil {
		reason = strings.TrimSpace(err.Error())
	}
	return n.send(ctx, payload{
		title:    "studypair - Batch Failed",
		message:  fmt.Sprintf("Batch %s stopped: %s", shortID(batchID), reason),
		tags:     []string{"studypair", "error", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:    "studypair - Test",
		message:  "Notification test",
		tags:     []string{"studypair", "test"},
		priority: "low",
	})
}

func (n *ntfyService) send(ctx context.Context, data payload) error {
	if n == nil || n.client == nil {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.endpoint, strings.NewReader(data.message))
	if err != nil {
		return fmt.Errorf("build ntfy request: %w", err)
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	if data.title != "" {
		req.Header.Set("Title", data.title)
	}
	if len(data.tags) > 0 {
		req.Header.Set("Tags", strings.Join(data.tags, ","))
	}
	if data.priority != "" && data.priority != "default" {
		req.Header.Set("Priority", data.priority)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return fmt.Errorf("send ntfy notification: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 2048))
		return fmt.Errorf("ntfy returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// shortID trims a UUID batch ID to its first group.
func shortID(id string) string {
	if i := strings.IndexByte(id, '-'); i > 0 {
		return id[:i]
	}
	return id
}

type noopService struct{}

func (noopService) NotifyBatchStarted(context.Context, string, int) error    { return nil }
func (noopService) NotifyBatchCompleted(context.Context, BatchSummary) error { return nil }
func (noopService) NotifyFault(context.Context, string, error) error         { return nil }
func (noopService) TestNotification(context.Context) error                   { return nil }
