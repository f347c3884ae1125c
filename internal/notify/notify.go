// Package notify provides the alert surfaces used by the entrywatch command:
// a structured log line, an Apprise-style webhook, a local command, and a
// fan-out over several of them.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/exec"
	"strconv"
	"time"

	"github.com/jpalmerr/entrywatch"
)

// maxErrorBody bounds the response excerpt carried by a webhook error.
const maxErrorBody = 200

// Log writes every alert as a structured log record.
type Log struct {
	logger *slog.Logger
}

// NewLog creates a [Log] notifier. A nil logger means slog.Default().
func NewLog(logger *slog.Logger) *Log {
	if logger == nil {
		logger = slog.Default()
	}
	return &Log{logger: logger}
}

func (l *Log) OpenAlert(ctx context.Context, a entrywatch.Alert) error {
	l.logger.LogAttrs(ctx, slog.LevelInfo, "ALERT "+Title(a),
		slog.String("kind", string(a.Kind)),
		slog.String("target_id", a.TargetID),
		slog.String("label", a.Label),
		slog.String("url", a.URL),
		slog.String("status", string(a.Status)),
		slog.Int("slots", a.Slots),
	)
	return nil
}

// Title is the one-line headline of an alert.
func Title(a entrywatch.Alert) string {
	if a.Kind == entrywatch.AlertSlotAvailable {
		return "Slot available: " + a.Label
	}
	return "Entries open: " + a.Label
}

// Body is the message text of an alert.
func Body(a entrywatch.Alert) string {
	body := fmt.Sprintf("%s\n%s\nStatus: %s", a.Label, a.URL, a.Status)
	if a.Slots >= 0 {
		body += fmt.Sprintf("\nFree slots: %d", a.Slots)
	}
	return body
}

// Webhook posts alerts as JSON to an HTTP endpoint. The payload carries the
// title, body and format fields an Apprise API server expects, plus the
// alert itself for other receivers.
type Webhook struct {
	url     string
	headers map[string]string
	client  *http.Client
}

// NewWebhook creates a [Webhook] notifier posting to url.
func NewWebhook(url string, headers map[string]string, timeout time.Duration) *Webhook {
	if timeout <= 0 {
		timeout = 10 * time.Second
	}
	return &Webhook{
		url:     url,
		headers: headers,
		client:  &http.Client{Timeout: timeout},
	}
}

type webhookPayload struct {
	Title  string           `json:"title"`
	Body   string           `json:"body"`
	Format string           `json:"format"`
	Alert  entrywatch.Alert `json:"alert"`
}

func (wh *Webhook) OpenAlert(ctx context.Context, a entrywatch.Alert) error {
	payload, err := json.Marshal(webhookPayload{
		Title:  Title(a),
		Body:   Body(a),
		Format: "text",
		Alert:  a,
	})
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, wh.url, bytes.NewReader(payload))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range wh.headers {
		req.Header.Set(k, v)
	}

	resp, err := wh.client.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send webhook: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return fmt.Errorf("webhook returned %d: %s", resp.StatusCode, bytes.TrimSpace(snippet))
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}

// Command runs a local program for every alert, for example a sound player
// or a desktop notification tool. The alert is passed in ENTRYWATCH_*
// environment variables.
type Command struct {
	name string
	args []string
}

// NewCommand creates a [Command] notifier. argv[0] is the program.
func NewCommand(argv []string) (*Command, error) {
	if len(argv) == 0 || argv[0] == "" {
		return nil, errors.New("command cannot be empty")
	}
	return &Command{name: argv[0], args: argv[1:]}, nil
}

func (c *Command) OpenAlert(ctx context.Context, a entrywatch.Alert) error {
	cmd := exec.CommandContext(ctx, c.name, c.args...)
	cmd.Env = append(os.Environ(),
		"ENTRYWATCH_KIND="+string(a.Kind),
		"ENTRYWATCH_TARGET_ID="+a.TargetID,
		"ENTRYWATCH_LABEL="+a.Label,
		"ENTRYWATCH_URL="+a.URL,
		"ENTRYWATCH_STATUS="+string(a.Status),
		"ENTRYWATCH_SLOTS="+strconv.Itoa(a.Slots),
		"ENTRYWATCH_TITLE="+Title(a),
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("command %s: %w: %s", c.name, err, bytes.TrimSpace(out))
	}
	return nil
}

// Multi fans an alert out to several notifiers in order. Every notifier is
// called even when an earlier one fails; the failures are joined.
type Multi []entrywatch.Notifier

func (m Multi) OpenAlert(ctx context.Context, a entrywatch.Alert) error {
	var errs []error
	for _, n := range m {
		if err := n.OpenAlert(ctx, a); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
