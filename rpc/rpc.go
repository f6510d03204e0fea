// Package rpc implements the analyzer client pool: one long-lived HTTP
// client per analyzer, keyed by name, carrying the distributor's
// Analyze(Packet) -> Ack request/response call as a JSON POST.
package rpc

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/arclight-systems/logdist/core"
)

// LogMessage is one opaque log line within a Packet.
type LogMessage struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs"`
}

// Packet is the batch of log messages routed atomically to one analyzer.
type Packet struct {
	SourceID string       `json:"source_id"`
	Messages []LogMessage `json:"messages"`
}

// Ack is the analyzer's response to a successful Analyze call.
type Ack struct {
	Accepted bool   `json:"accepted"`
	Note     string `json:"note"`
}

// ErrorKind classifies why a call to an analyzer failed.
type ErrorKind int

const (
	// ErrKindTimeout means the per-attempt deadline was exceeded.
	ErrKindTimeout ErrorKind = iota
	// ErrKindTransport means the request could not reach the analyzer
	// (connection refused, DNS failure, etc).
	ErrKindTransport
	// ErrKindStatus means the analyzer responded with a non-2xx status,
	// including its own admission refusal (a 503 whose body names the
	// inactive analyzer).
	ErrKindStatus
)

// Error is returned by Client.Analyze on any failure. It always counts
// as a breaker failure regardless of Kind: an inactive analyzer and a
// crashed one are indistinguishable to the dispatcher.
type Error struct {
	Kind       ErrorKind
	StatusCode int
	Analyzer   string
	Err        error
}

func (e *Error) Error() string {
	switch e.Kind {
	case ErrKindTimeout:
		return fmt.Sprintf("rpc: %s: timeout: %v", e.Analyzer, e.Err)
	case ErrKindStatus:
		return fmt.Sprintf("rpc: %s: status %d: %v", e.Analyzer, e.StatusCode, e.Err)
	default:
		return fmt.Sprintf("rpc: %s: transport error: %v", e.Analyzer, e.Err)
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Is maps each ErrorKind onto the matching core sentinel, so callers can
// classify failures with errors.Is (and core.IsRetryable) without
// reaching for the concrete type.
func (e *Error) Is(target error) bool {
	switch target {
	case core.ErrTimeout:
		return e.Kind == ErrKindTimeout
	case core.ErrConnectionFailed:
		return e.Kind == ErrKindTransport
	case core.ErrRequestFailed:
		return e.Kind == ErrKindStatus
	}
	return false
}

// Client is one analyzer's channel: a persistent *http.Client and its
// base URL. Construction is non-blocking: it does not probe the
// analyzer for reachability.
type Client struct {
	name       string
	baseURL    string
	httpClient *http.Client
	logger     core.Logger
}

// NewClient constructs a Client for one analyzer. baseURL should be the
// analyzer's http://host:port root; the client POSTs to baseURL+"/analyze".
func NewClient(name, baseURL string, logger core.Logger) *Client {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	return &Client{
		name:    name,
		baseURL: baseURL,
		httpClient: &http.Client{
			// No client-level Timeout: each call supplies its own
			// per-attempt deadline via the request context.
		},
		logger: logger,
	}
}

// Analyze sends packet to this analyzer, bounded by deadline. A non-nil
// error is always an *Error.
func (c *Client) Analyze(ctx context.Context, packet Packet, deadline time.Duration) (*Ack, error) {
	ctx, cancel := context.WithTimeout(ctx, deadline)
	defer cancel()

	body, err := json.Marshal(packet)
	if err != nil {
		return nil, &Error{Kind: ErrKindTransport, Analyzer: c.name, Err: fmt.Errorf("marshal packet: %w", err)}
	}

	c.logger.Debug("analyzer rpc request", map[string]interface{}{
		"analyzer": c.name,
		"messages": len(packet.Messages),
	})

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/analyze", bytes.NewReader(body))
	if err != nil {
		return nil, &Error{Kind: ErrKindTransport, Analyzer: c.name, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Kind: ErrKindTimeout, Analyzer: c.name, Err: ctx.Err()}
		}
		return nil, &Error{Kind: ErrKindTransport, Analyzer: c.name, Err: err}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &Error{Kind: ErrKindTransport, Analyzer: c.name, Err: fmt.Errorf("read response: %w", err)}
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &Error{
			Kind:       ErrKindStatus,
			StatusCode: resp.StatusCode,
			Analyzer:   c.name,
			Err:        fmt.Errorf("%s", string(respBody)),
		}
	}

	var ack Ack
	if err := json.Unmarshal(respBody, &ack); err != nil {
		return nil, &Error{Kind: ErrKindTransport, Analyzer: c.name, Err: fmt.Errorf("decode ack: %w", err)}
	}
	return &ack, nil
}

// Pool holds one Client per analyzer, keyed by name, created once at
// startup and read-only thereafter.
type Pool struct {
	clients map[string]*Client
}

// NewPool builds a Pool from a map of analyzer name -> base URL.
func NewPool(endpoints map[string]string, logger core.Logger) *Pool {
	clients := make(map[string]*Client, len(endpoints))
	for name, baseURL := range endpoints {
		clients[name] = NewClient(name, baseURL, logger)
	}
	return &Pool{clients: clients}
}

// Get returns the Client for name, or nil if name is not in the pool.
func (p *Pool) Get(name string) *Client {
	return p.clients[name]
}

// Names returns the configured analyzer names. Order is unspecified.
func (p *Pool) Names() []string {
	names := make([]string, 0, len(p.clients))
	for name := range p.clients {
		names = append(names, name)
	}
	return names
}
