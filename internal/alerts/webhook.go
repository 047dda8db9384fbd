package alerts

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/Suraj-creation/Sysmind-CLI/internal/config"
)

// errPermanent marks a delivery failure that retrying cannot fix.
var errPermanent = errors.New("permanent")

// dispatch records a and sends it to every webhook target.
// Errors are logged but do not affect the caller.
func (e *Engine) dispatch(ctx context.Context, webhooks []config.WebhookConfig, a *Alert) {
	if e.recorder != nil {
		if err := e.recorder.RecordAlert(ctx, *a); err != nil {
			slog.Error("alerts: record failed", "rule", a.RuleName, "err", err)
		}
	}

	for _, wh := range webhooks {
		url := wh.URL()
		if url == "" {
			continue
		}

		var body []byte
		switch wh.Type {
		case "slack":
			body = slackPayload(a)
		case "teams":
			body = teamsPayload(a)
		case "http":
			body, _ = json.Marshal(map[string]interface{}{"alert": a})
		default:
			slog.Warn("alerts: unknown webhook type, skipping", "type", wh.Type)
			continue
		}

		if err := e.deliver(ctx, url, body); err != nil {
			slog.Error("alerts: webhook delivery failed",
				"type", wh.Type,
				"rule", a.RuleName,
				"err", err,
			)
		} else {
			slog.Debug("alerts: webhook delivered",
				"type", wh.Type,
				"rule", a.RuleName,
				"state", a.State,
			)
		}
	}
}

// deliver posts body, retrying transport errors and 5xx responses with
// exponential backoff.
func (e *Engine) deliver(ctx context.Context, url string, body []byte) error {
	wait := e.backoff
	var err error
	for attempt := 1; attempt <= e.attempts; attempt++ {
		err = e.post(ctx, url, body)
		if err == nil || errors.Is(err, errPermanent) {
			return err
		}
		if attempt == e.attempts {
			break
		}
		slog.Debug("alerts: webhook attempt failed, retrying",
			"attempt", attempt, "backoff", wait, "err", err)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(wait):
		}
		wait *= 2
	}
	return fmt.Errorf("after %d attempts: %w", e.attempts, err)
}

func (e *Engine) post(ctx context.Context, url string, body []byte) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("build request: %w (%w)", err, errPermanent)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := e.client.Do(req)
	if err != nil {
		return fmt.Errorf("http post: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode >= 500:
		return fmt.Errorf("webhook returned HTTP %d", resp.StatusCode)
	case resp.StatusCode >= 400:
		return fmt.Errorf("webhook returned HTTP %d: %w", resp.StatusCode, errPermanent)
	}
	return nil
}

func slackPayload(a *Alert) []byte {
	text := fmt.Sprintf("*%s* %s", severityLabel(a.Severity), a.Message)
	if a.State == StateResolved {
		text = fmt.Sprintf("*[RESOLVED]* %s", a.RuleName)
	}
	body, _ := json.Marshal(map[string]string{"text": text})
	return body
}

func teamsPayload(a *Alert) []byte {
	color := severityColor(a.Severity)
	title := fmt.Sprintf("SysMind Alert: %s", a.RuleName)
	if a.State == StateResolved {
		color = "2EB67D"
		title = fmt.Sprintf("SysMind Resolved: %s", a.RuleName)
	}
	body, _ := json.Marshal(map[string]interface{}{
		"@type":      "MessageCard",
		"@context":   "http://schema.org/extensions",
		"themeColor": color,
		"summary":    a.RuleName,
		"title":      title,
		"text":       a.Message,
	})
	return body
}

func severityLabel(s string) string {
	switch s {
	case "critical":
		return "[CRITICAL]"
	case "warning":
		return "[WARNING]"
	default:
		return "[INFO]"
	}
}

func severityColor(s string) string {
	switch s {
	case "critical":
		return "FF4F6A"
	case "warning":
		return "FFAB40"
	default:
		return "00D4FF"
	}
}
