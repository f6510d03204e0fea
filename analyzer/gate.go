// Package analyzer implements the admission gate: the small server one
// analyzer process runs to accept routed packets, subject to a live
// active/inactive flag it polls from the config store.
package analyzer

import (
	"encoding/json"
	"fmt"
	"net/http"
	"sync/atomic"

	"github.com/arclight-systems/logdist/core"
	"github.com/arclight-systems/logdist/logsink"
	"github.com/arclight-systems/logdist/rpc"
)

// Gate is one analyzer's admission gate: it answers POST /analyze,
// refusing every call while its cached active flag is false. The active
// flag is set by whatever poller the caller wires up (see
// configstore.Store.WatchActive). Gate itself never reads the config
// store directly, so tests can drive it without Redis.
type Gate struct {
	name   string
	sink   logsink.Sink
	logger core.Logger
	active atomic.Bool
}

// New constructs a Gate for the named analyzer. It starts active.
func New(name string, sink logsink.Sink, logger core.Logger) *Gate {
	if logger == nil {
		logger = &core.NoOpLogger{}
	}
	g := &Gate{name: name, sink: sink, logger: logger}
	g.active.Store(true)
	return g
}

// SetActive updates the cached active flag. Intended as the onUpdate
// callback passed to configstore.Store.WatchActive.
func (g *Gate) SetActive(active bool) {
	if g.active.Swap(active) != active {
		g.logger.Info("admission gate active flag changed", map[string]interface{}{
			"analyzer": g.name,
			"active":   active,
		})
	}
}

// Active reports the gate's current cached flag.
func (g *Gate) Active() bool {
	return g.active.Load()
}

type errorBody struct {
	Error string `json:"error"`
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}

// ServeAnalyze implements POST /analyze: it is the far end of
// rpc.Client.Analyze. While inactive it returns 503 with a body naming
// the analyzer, matching the distributor's rpc.ErrKindStatus
// classification. While active it logs every message through the
// configured sink and acks.
func (g *Gate) ServeAnalyze(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeJSON(w, http.StatusMethodNotAllowed, errorBody{Error: "method not allowed"})
		return
	}

	if !g.Active() {
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: fmt.Sprintf("%s inactive", g.name)})
		return
	}

	var packet rpc.Packet
	if err := json.NewDecoder(r.Body).Decode(&packet); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return
	}

	for _, m := range packet.Messages {
		g.sink.Emit(g.name, m.Message)
	}

	writeJSON(w, http.StatusOK, rpc.Ack{
		Accepted: true,
		Note:     fmt.Sprintf("%s accepted %d msgs", g.name, len(packet.Messages)),
	})
}

type healthResponse struct {
	OK       bool   `json:"ok"`
	Analyzer string `json:"analyzer"`
	Active   bool   `json:"active"`
}

// ServeHealth implements GET /health for the analyzer process.
func (g *Gate) ServeHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, healthResponse{OK: true, Analyzer: g.name, Active: g.Active()})
}
