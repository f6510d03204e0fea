// Package dispatcher implements the ingest entry point: it validates an
// incoming packet, repeatedly picks a candidate analyzer via the
// Selector, honors each candidate's circuit breaker, calls the analyzer,
// and retries across the shrinking candidate set until one accepts the
// packet or all candidates are exhausted.
package dispatcher

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"net/http"
	"time"

	"github.com/arclight-systems/logdist/breaker"
	"github.com/arclight-systems/logdist/core"
	"github.com/arclight-systems/logdist/metrics"
	"github.com/arclight-systems/logdist/rpc"
	"github.com/arclight-systems/logdist/selector"
)

// AnalyzerCaller is the subset of *rpc.Client the Dispatcher depends on,
// broken out so tests can substitute a fake without standing up an HTTP
// server. *rpc.Client satisfies this implicitly.
type AnalyzerCaller interface {
	Analyze(ctx context.Context, packet rpc.Packet, deadline time.Duration) (*rpc.Ack, error)
}

// Pool resolves an analyzer name to its AnalyzerCaller. Defined as an
// interface (rather than depending on *rpc.Pool directly) so tests can
// substitute fake analyzers without an HTTP server; RPCPoolAdapter wraps
// a real *rpc.Pool to satisfy it.
type Pool interface {
	Get(name string) AnalyzerCaller
}

// RPCPoolAdapter adapts *rpc.Pool to the Pool interface.
type RPCPoolAdapter struct {
	Pool *rpc.Pool
}

// Get implements Pool.
func (a RPCPoolAdapter) Get(name string) AnalyzerCaller {
	client := a.Pool.Get(name)
	if client == nil {
		return nil
	}
	return client
}

// Dispatcher is the /ingest entry point. Construct with New; it has no
// other state-mutating entry points besides ServeIngest and ServeHealth.
type Dispatcher struct {
	analyzers []string
	breakers  map[string]*breaker.Breaker
	pool      Pool
	selector  *selector.Selector
	weights   *WeightStore
	metrics   *metrics.DistributorMetrics
	logger    core.Logger
	timeout   time.Duration
}

// Config bundles Dispatcher's dependencies.
type Config struct {
	Analyzers       []string
	Breakers        map[string]*breaker.Breaker
	Pool            Pool
	Selector        *selector.Selector
	Weights         *WeightStore
	Metrics         *metrics.DistributorMetrics
	Logger          core.Logger
	AnalyzerTimeout time.Duration
}

// New constructs a Dispatcher. analyzers, breakers, and pool are fixed
// for the process lifetime; only the weight map changes after startup.
func New(cfg Config) *Dispatcher {
	if cfg.Logger == nil {
		cfg.Logger = &core.NoOpLogger{}
	}
	analyzers := make([]string, len(cfg.Analyzers))
	copy(analyzers, cfg.Analyzers)
	return &Dispatcher{
		analyzers: analyzers,
		breakers:  cfg.Breakers,
		pool:      cfg.Pool,
		selector:  cfg.Selector,
		weights:   cfg.Weights,
		metrics:   cfg.Metrics,
		logger:    cfg.Logger,
		timeout:   cfg.AnalyzerTimeout,
	}
}

type ingestMessage struct {
	Timestamp string            `json:"timestamp"`
	Level     string            `json:"level"`
	Message   string            `json:"message"`
	Attrs     map[string]string `json:"attrs"`
}

type ingestRequest struct {
	SourceID string          `json:"source_id"`
	Messages []ingestMessage `json:"messages"`
}

type ingestResponse struct {
	AcceptedBy string `json:"accepted_by"`
	Count      int    `json:"count"`
}

type errorResponse struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// decodeAndValidate parses the request body, applies field defaults
// (source_id="sim", level="INFO", attrs={}), and enforces the input
// constraints: messages must be non-empty, and every message's Message
// field must be non-empty.
func decodeAndValidate(r *http.Request) (rpc.Packet, error) {
	var req ingestRequest
	dec := json.NewDecoder(r.Body)
	if err := dec.Decode(&req); err != nil {
		return rpc.Packet{}, fmt.Errorf("malformed request body: %w", err)
	}

	if req.SourceID == "" {
		req.SourceID = "sim"
	}
	if len(req.Messages) == 0 {
		return rpc.Packet{}, fmt.Errorf("messages must be non-empty")
	}

	packet := rpc.Packet{
		SourceID: req.SourceID,
		Messages: make([]rpc.LogMessage, len(req.Messages)),
	}
	for i, m := range req.Messages {
		if m.Message == "" {
			return rpc.Packet{}, fmt.Errorf("messages[%d].message must be non-empty", i)
		}
		if m.Level == "" {
			m.Level = "INFO"
		}
		if m.Attrs == nil {
			m.Attrs = map[string]string{}
		}
		packet.Messages[i] = rpc.LogMessage{
			Timestamp: m.Timestamp,
			Level:     m.Level,
			Message:   m.Message,
			Attrs:     m.Attrs,
		}
	}
	return packet, nil
}

// ServeIngest implements POST /ingest.
func (d *Dispatcher) ServeIngest(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}

	packet, err := decodeAndValidate(r)
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}

	if len(d.analyzers) == 0 {
		writeError(w, http.StatusServiceUnavailable, core.ErrNoAnalyzers.Error())
		return
	}

	d.maybeLogBreakerSnapshot()

	tried := make(map[string]bool, len(d.analyzers))
	for len(tried) < len(d.analyzers) {
		remaining := make([]string, 0, len(d.analyzers)-len(tried))
		for _, name := range d.analyzers {
			if !tried[name] {
				remaining = append(remaining, name)
			}
		}

		target := d.selector.Choose(remaining, d.weights.Snapshot())
		tried[target] = true

		br := d.breakers[target]
		if !br.Allow() {
			continue
		}

		// The outbound call is deliberately rooted in context.Background(),
		// not r.Context(): per-call deadline is carried by the deadline
		// argument, and inbound client cancellation must not abort an
		// in-flight outbound call.
		ack, callErr := d.pool.Get(target).Analyze(context.Background(), packet, d.timeout)

		if callErr != nil {
			br.RecordFailure()
			if d.metrics != nil {
				d.metrics.RecordFailure()
			}
			d.logger.Warn("analyzer call failed", map[string]interface{}{
				"analyzer": target,
				"error":    callErr.Error(),
			})
			continue
		}

		br.RecordSuccess()
		if d.metrics != nil {
			d.metrics.RecordSuccess()
		}
		d.logger.Debug("analyzer accepted packet", map[string]interface{}{
			"analyzer": target,
			"note":     ack.Note,
		})
		writeJSON(w, http.StatusOK, ingestResponse{AcceptedBy: target, Count: len(packet.Messages)})
		return
	}

	writeError(w, http.StatusServiceUnavailable, core.ErrAllAnalyzersBlocked.Error())
}

// maybeLogBreakerSnapshot occasionally (roughly 5% of requests) emits a
// debug-level snapshot of every breaker, a local-debugging aid for
// watching trip/recovery cycles without polling /health.
func (d *Dispatcher) maybeLogBreakerSnapshot() {
	if rand.Float64() >= 0.05 {
		return
	}
	snapshots := make(map[string]breaker.Snapshot, len(d.breakers))
	for name, br := range d.breakers {
		snapshots[name] = br.Snapshot()
	}
	d.logger.Debug("breaker_snapshot", map[string]interface{}{"breakers": snapshots})
}

type healthResponse struct {
	OK        bool                        `json:"ok"`
	Analyzers []string                    `json:"analyzers"`
	Weights   map[string]float64          `json:"weights"`
	Breakers  map[string]breaker.Snapshot `json:"breakers"`
}

// ServeHealth implements GET /health.
func (d *Dispatcher) ServeHealth(w http.ResponseWriter, r *http.Request) {
	snapshots := make(map[string]breaker.Snapshot, len(d.breakers))
	for name, br := range d.breakers {
		snapshots[name] = br.Snapshot()
	}
	writeJSON(w, http.StatusOK, healthResponse{
		OK:        true,
		Analyzers: d.analyzers,
		Weights:   d.weights.Snapshot(),
		Breakers:  snapshots,
	})
}
