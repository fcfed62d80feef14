package cdpcontrol

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/chromedp/cdproto/target"

	"github.com/dgnsrekt/booktabs/internal/apperr"
)

type roundTripFunc func(*http.Request) (*http.Response, error)

func (f roundTripFunc) RoundTrip(req *http.Request) (*http.Response, error) {
	return f(req)
}

func withDefaultHTTPClient(t *testing.T, transport http.RoundTripper) {
	t.Helper()
	origClient := http.DefaultClient
	t.Cleanup(func() {
		http.DefaultClient = origClient
	})
	http.DefaultClient = &http.Client{
		Transport: transport,
	}
}

func codedErr(t *testing.T, err error) *apperr.CodedError {
	t.Helper()
	var coded *apperr.CodedError
	if !errors.As(err, &coded) {
		t.Fatalf("expected *apperr.CodedError, got %T (%v)", err, err)
	}
	return coded
}

func TestSyncTargetsLockedWrapsListTargetsError(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if req.URL.Path == "/json/list" {
			return &http.Response{
				StatusCode: http.StatusInternalServerError,
				Body:       io.NopCloser(strings.NewReader(`oops`)),
			}, nil
		}
		return &http.Response{StatusCode: http.StatusNotFound, Body: io.NopCloser(strings.NewReader(``))}, nil
	}))

	c := &Client{
		cdp:      newRawCDP("http://example.com"),
		sessions: map[target.ID]*tabSession{},
	}

	_, err := c.syncTargetsLocked(context.Background())
	if err == nil {
		t.Fatal("expected syncTargetsLocked() to fail")
	}

	coded := codedErr(t, err)
	if coded.Code != apperr.CodeCDPUnavailable {
		t.Fatalf("error code = %s; want %s", coded.Code, apperr.CodeCDPUnavailable)
	}
	if !strings.Contains(coded.Message, "failed to list targets") {
		t.Fatalf("error message = %q; want to contain %q", coded.Message, "failed to list targets")
	}
}

func TestConnectFailureIsUnavailable(t *testing.T) {
	withDefaultHTTPClient(t, roundTripFunc(func(req *http.Request) (*http.Response, error) {
		return nil, errors.New("dial tcp 127.0.0.1:9222: connect: connection refused")
	}))

	c := NewClient("http://127.0.0.1:9222", time.Second)
	if _, err := c.Query(context.Background(), "https://*/*"); !apperr.HasCode(err, apperr.CodeCDPUnavailable) {
		t.Fatalf("Query() error = %v; want %s", err, apperr.CodeCDPUnavailable)
	}

	c = NewClient("", time.Second)
	if err := c.Connect(context.Background()); !apperr.HasCode(err, apperr.CodeCDPUnavailable) {
		t.Fatalf("Connect() without URL error = %v", err)
	}
}

func TestWrapCDPErrorClassifies(t *testing.T) {
	c := NewClient("http://example.com", time.Second)

	tests := []struct {
		name string
		err  error
		want string
	}{
		{"deadline", fmt.Errorf("rawcdp: %w", context.DeadlineExceeded), apperr.CodeTimeout},
		{"not connected", errors.New("rawcdp: not connected"), apperr.CodeCDPUnavailable},
		{"closed", errors.New("rawcdp: connection closed"), apperr.CodeCDPUnavailable},
		{"protocol", errors.New("rawcdp: Target.closeTarget: No target with given id found"), apperr.CodeCDPFailure},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.wrapCDPError(context.Background(), "op failed", tt.err)
			coded := codedErr(t, err)
			if coded.Code != tt.want {
				t.Fatalf("code = %s; want %s", coded.Code, tt.want)
			}
			if !errors.Is(err, tt.err) {
				t.Fatalf("cause not preserved: %v", err)
			}
		})
	}
}

func TestMoveUnknownTabIsNotFound(t *testing.T) {
	c := NewClient("http://example.com", time.Second)
	if err := c.Move(context.Background(), "nope", 0); !apperr.HasCode(err, apperr.CodeNotFound) {
		t.Fatalf("Move() error = %v; want %s", err, apperr.CodeNotFound)
	}
}
