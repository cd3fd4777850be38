package session

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// StreamRequest identifies one analysis run.
type StreamRequest struct {
	Ticker      string `json:"ticker"`
	UserID      string `json:"user_id"`
	RiskProfile string `json:"risk_profile"`
}

// StatusError is a non-2xx response from the analysis endpoint.
type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	body := strings.TrimSpace(e.Body)
	if body == "" {
		return fmt.Sprintf("analysis stream: status=%d", e.Status)
	}
	return fmt.Sprintf("analysis stream: status=%d: %s", e.Status, body)
}

// StreamFault is an in-band error record from the orchestrator. It is a
// session-level fault, never folded into the analysis aggregate.
type StreamFault struct {
	Message string
	Ticker  string
}

func (e *StreamFault) Error() string {
	return fmt.Sprintf("analysis stream fault (%s): %s", e.Ticker, e.Message)
}

// Transport opens the long-lived analysis byte stream. Implementations
// must honor ctx cancellation and return *StatusError on non-2xx.
type Transport interface {
	Open(ctx context.Context, req StreamRequest) (io.ReadCloser, error)
}

// HTTPTransport talks to the advisory backend over HTTP with bearer auth.
type HTTPTransport struct {
	BaseURL string
	// Token supplies the current bearer token; session management owns
	// refresh, this layer only attaches whatever is current.
	Token  func() string
	Client *http.Client
}

func (t *HTTPTransport) Open(ctx context.Context, req StreamRequest) (io.ReadCloser, error) {
	url := strings.TrimRight(t.BaseURL, "/") + "/analysis/stream"
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encode stream request: %w", err)
	}
	hreq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build stream request: %w", err)
	}
	hreq.Header.Set("Content-Type", "application/json")
	hreq.Header.Set("Accept", "text/event-stream")
	hreq.Header.Set("Cache-Control", "no-cache")
	if t.Token != nil {
		if tok := t.Token(); tok != "" {
			hreq.Header.Set("Authorization", "Bearer "+tok)
		}
	}

	client := t.Client
	if client == nil {
		// No client timeout: the stream is long-lived, inactivity is
		// policed by the coordinator's watchdog.
		client = &http.Client{}
	}
	resp, err := client.Do(hreq)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode/100 != 2 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		resp.Body.Close()
		return nil, &StatusError{Status: resp.StatusCode, Body: string(body)}
	}
	return resp.Body, nil
}
