// Package notify pushes storage failures to an ntfy-compatible endpoint.
package notify

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Notifier posts plain-text notifications. A nil *Notifier is a no-op.
type Notifier struct {
	endpoint string
	client   *http.Client
	timeout  time.Duration
}

// New returns a Notifier for endpoint, or nil when endpoint is empty.
func New(endpoint string, client *http.Client) *Notifier {
	if strings.TrimSpace(endpoint) == "" {
		return nil
	}
	return &Notifier{endpoint: endpoint, client: client, timeout: 5 * time.Second}
}

// StorageFailure reports a failed settings operation. It is sent once and
// never retried.
func (n *Notifier) StorageFailure(ctx context.Context, op string, cause error) error {
	if n == nil {
		return nil
	}
	msg := fmt.Sprintf("booktabs could not %s: %v", op, cause)

	ctx, cancel := context.WithTimeout(ctx, n.timeout)
	defer cancel()
	err := Send(ctx, n.client, n.endpoint, msg, Header{"Title", "booktabs settings not saved"}, Header{"Tags", "warning"})
	if err != nil {
		slog.Warn("storage failure notification failed", "op", op, "error", err)
	}
	return err
}

// Header is an extra request header, e.g. ntfy's Title or Priority.
type Header struct {
	Key   string
	Value string
}

// Send sends a message to the requested endpoint using HTTP POST.
func Send(ctx context.Context, client *http.Client, endpoint, message string, headers ...Header) error {
	if endpoint == "" {
		return errors.New("ntfy endpoint is empty")
	}
	c := client
	if c == nil {
		c = http.DefaultClient
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(message))
	if err != nil {
		return err
	}

	req.Header.Set("Content-Type", "text/plain")
	for _, h := range headers {
		req.Header.Set(h.Key, h.Value)
	}

	resp, err := c.Do(req)
	if err != nil {
		return err
	}
	defer func() {
		_ = resp.Body.Close()
	}()
	_, _ = io.Copy(io.Discard, resp.Body)

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("ntfy notification failed: status=%d", resp.StatusCode)
	}
	return nil
}
