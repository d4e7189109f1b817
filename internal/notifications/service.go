package notifications

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"pidish/internal/config"
	"pidish/internal/printer"
)

const userAgent = "pidish/0.1.0"

const defaultTimeout = 10 * time.Second

// Service defines the notification surface used by the daemon.
type Service interface {
	NotifyJobFinished(ctx context.Context, rec printer.JobRecord) error
	NotifyFault(ctx context.Context, err error) error
	TestNotification(ctx context.Context) error
}

// NewService builds a notification service backed by ntfy when configured.
// When no ntfy topic is configured, a noop implementation is returned.
func NewService(cfg config.Notifications) Service {
	topic := strings.TrimSpace(cfg.NtfyTopic)
	if topic == "" {
		return noopService{}
	}

	timeout := time.Duration(cfg.RequestTimeoutSeconds) * time.Second
	if timeout <= 0 {
		timeout = defaultTimeout
	}

	return &ntfyService{
		endpoint: topic,
		client:   &http.Client{Timeout: timeout},
	}
}

// Enabled reports whether svc actually delivers messages.
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

func (n *ntfyService) NotifyJobFinished(ctx context.Context, rec printer.JobRecord) error {
	data, ok := jobPayload(rec)
	if !ok {
		return nil
	}
	return n.send(ctx, data)
}

func (n *ntfyService) NotifyFault(ctx context.Context, err error) error {
	if err == nil {
		return nil
	}
	return n.send(ctx, payload{
		title:    "pidish - Printer Fault",
		message:  fmt.Sprintf("Printer stopped: %v", err),
		tags:     []string{"pidish", "fault", "alert"},
		priority: "high",
	})
}

func (n *ntfyService) TestNotification(ctx context.Context) error {
	return n.send(ctx, payload{
		title:   "pidish - Test",
		message: "Test notification from pidish",
		tags:    []string{"pidish", "test"},
	})
}

// jobPayload formats a finished job. Rejected commands never reach a printer
// and are not announced.
func jobPayload(rec printer.JobRecord) (payload, bool) {
	name := jobName(rec)
	switch rec.Outcome {
	case printer.OutcomeCompleted:
		return payload{
			title:   "pidish - " + kindTitle(rec.Kind) + " Complete",
			message: fmt.Sprintf("%s finished: %d layers in %s", name, rec.LayersDone, elapsed(rec)),
			tags:    []string{"pidish", string(rec.Kind), "completed"},
		}, true
	case printer.OutcomeAborted:
		return payload{
			title:   "pidish - " + kindTitle(rec.Kind) + " Aborted",
			message: fmt.Sprintf("%s aborted after %d of %d layers", name, rec.LayersDone, rec.Layers),
			tags:    []string{"pidish", string(rec.Kind), "aborted"},
		}, true
	case printer.OutcomeFault:
		msg := fmt.Sprintf("%s failed after %d of %d layers", name, rec.LayersDone, rec.Layers)
		if rec.Error != "" {
			msg += ": " + rec.Error
		}
		return payload{
			title:    "pidish - " + kindTitle(rec.Kind) + " Failed",
			message:  msg,
			tags:     []string{"pidish", string(rec.Kind), "error"},
			priority: "high",
		}, true
	default:
		return payload{}, false
	}
}

func jobName(rec printer.JobRecord) string {
	if rec.Kind == printer.JobCalibration {
		return fmt.Sprintf("Calibration %s-%s", rec.Exposure, rec.ExposureMax)
	}
	if rec.Object != "" {
		return rec.Object
	}
	return "Print"
}

func kindTitle(kind printer.JobKind) string {
	if kind == printer.JobCalibration {
		return "Calibration"
	}
	return "Print"
}

func elapsed(rec printer.JobRecord) string {
	if rec.StartedAt.IsZero() || rec.FinishedAt.Before(rec.StartedAt) {
		return "unknown time"
	}
	return rec.FinishedAt.Sub(rec.StartedAt).Round(time.Second).String()
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

type noopService struct{}

func (noopService) NotifyJobFinished(context.Context, printer.JobRecord) error { return nil }
func (noopService) NotifyFault(context.Context, error) error                   { return nil }
func (noopService) TestNotification(context.Context) error                     { return nil }
