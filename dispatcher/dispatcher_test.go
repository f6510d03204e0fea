package dispatcher

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/require"

	"github.com/arclight-systems/logdist/breaker"
	"github.com/arclight-systems/logdist/metrics"
	"github.com/arclight-systems/logdist/rpc"
	"github.com/arclight-systems/logdist/selector"
)

// fakeCaller is a scriptable AnalyzerCaller: behavior(call index) decides
// the outcome of each successive call.
type fakeCaller struct {
	calls    int64
	behavior func(call int) (*rpc.Ack, error)
}

func (f *fakeCaller) Analyze(ctx context.Context, packet rpc.Packet, deadline time.Duration) (*rpc.Ack, error) {
	n := int(atomic.AddInt64(&f.calls, 1))
	return f.behavior(n)
}

func alwaysAck(name string) func(int) (*rpc.Ack, error) {
	return func(int) (*rpc.Ack, error) {
		return &rpc.Ack{Accepted: true, Note: name + " accepted"}, nil
	}
}

func alwaysTimeout(name string) func(int) (*rpc.Ack, error) {
	return func(int) (*rpc.Ack, error) {
		return nil, &rpc.Error{Kind: rpc.ErrKindTimeout, Analyzer: name}
	}
}

type fakePool struct {
	mu      sync.Mutex
	callers map[string]*fakeCaller
}

func newFakePool(callers map[string]*fakeCaller) *fakePool {
	return &fakePool{callers: callers}
}

func (p *fakePool) Get(name string) AnalyzerCaller {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.callers[name]
	if !ok {
		return nil
	}
	return c
}

func newBreaker(t *testing.T, failureThreshold int, recovery time.Duration, halfOpenSucc int) *breaker.Breaker {
	t.Helper()
	b, err := breaker.New("b", breaker.Config{
		FailureThreshold:         failureThreshold,
		RecoveryTimeout:          recovery,
		HalfOpenSuccessThreshold: halfOpenSucc,
	})
	require.NoError(t, err)
	return b
}

func newTestDispatcher(t *testing.T, analyzers []string, callers map[string]*fakeCaller, breakers map[string]*breaker.Breaker, weights map[string]float64) *Dispatcher {
	t.Helper()
	m, err := metrics.NewDistributorMetrics(prometheus.NewRegistry())
	require.NoError(t, err)

	return New(Config{
		Analyzers:       analyzers,
		Breakers:        breakers,
		Pool:            newFakePool(callers),
		Selector:        selector.New(1, nil),
		Weights:         NewWeightStore(weights),
		Metrics:         m,
		AnalyzerTimeout: 50 * time.Millisecond,
	})
}

func postIngest(t *testing.T, d *Dispatcher, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/ingest", strings.NewReader(body))
	rec := httptest.NewRecorder()
	d.ServeIngest(rec, req)
	return rec
}

const samplePacket = `{"source_id":"svc","messages":[{"message":"hello"}]}`

func TestHappyPath(t *testing.T) {
	analyzers := []string{"A", "B"}
	callers := map[string]*fakeCaller{
		"A": {behavior: alwaysAck("A")},
		"B": {behavior: alwaysAck("B")},
	}
	breakers := map[string]*breaker.Breaker{
		"A": newBreaker(t, 2, time.Second, 1),
		"B": newBreaker(t, 2, time.Second, 1),
	}
	d := newTestDispatcher(t, analyzers, callers, breakers, map[string]float64{"A": 1, "B": 1})

	rec := postIngest(t, d, samplePacket)
	require.Equal(t, http.StatusOK, rec.Code)

	var resp ingestResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.Contains(t, []string{"A", "B"}, resp.AcceptedBy)
	require.Equal(t, 1, resp.Count)

	require.Equal(t, "closed", breakers["A"].Snapshot().State)
	require.Equal(t, "closed", breakers["B"].Snapshot().State)
}

func TestSingleFailingAnalyzerShed(t *testing.T) {
	analyzers := []string{"A", "B"}
	callers := map[string]*fakeCaller{
		"A": {behavior: alwaysTimeout("A")},
		"B": {behavior: alwaysAck("B")},
	}
	breakers := map[string]*breaker.Breaker{
		"A": newBreaker(t, 2, time.Hour, 1),
		"B": newBreaker(t, 2, time.Hour, 1),
	}
	d := newTestDispatcher(t, analyzers, callers, breakers, map[string]float64{"A": 1, "B": 0})

	for i := 0; i < 10; i++ {
		rec := postIngest(t, d, samplePacket)
		require.Equal(t, http.StatusOK, rec.Code, "packet %d", i+1)
	}

	require.Equal(t, "open", breakers["A"].Snapshot().State)
	require.Equal(t, "closed", breakers["B"].Snapshot().State)
}

func TestAllBlocked(t *testing.T) {
	analyzers := []string{"A", "B"}
	callers := map[string]*fakeCaller{
		"A": {behavior: alwaysAck("A")},
		"B": {behavior: alwaysAck("B")},
	}
	breakerA := newBreaker(t, 1, time.Hour, 1)
	breakerB := newBreaker(t, 1, time.Hour, 1)
	breakerA.RecordFailure()
	breakerB.RecordFailure()
	require.Equal(t, "open", breakerA.Snapshot().State)
	require.Equal(t, "open", breakerB.Snapshot().State)

	breakers := map[string]*breaker.Breaker{"A": breakerA, "B": breakerB}
	d := newTestDispatcher(t, analyzers, callers, breakers, map[string]float64{"A": 1, "B": 1})

	rec := postIngest(t, d, samplePacket)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "all analyzers blocked by circuit breakers")

	require.Equal(t, "open", breakerA.Snapshot().State)
	require.Equal(t, "open", breakerB.Snapshot().State)
}

func TestRecovery(t *testing.T) {
	analyzers := []string{"A"}
	caller := &fakeCaller{behavior: func(n int) (*rpc.Ack, error) {
		if n == 1 {
			return nil, &rpc.Error{Kind: rpc.ErrKindTimeout, Analyzer: "A"}
		}
		return &rpc.Ack{Accepted: true}, nil
	}}
	br := newBreaker(t, 1, 50*time.Millisecond, 2)
	d := newTestDispatcher(t, analyzers, map[string]*fakeCaller{"A": caller}, map[string]*breaker.Breaker{"A": br}, map[string]float64{"A": 1})

	rec := postIngest(t, d, samplePacket)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Equal(t, "open", br.Snapshot().State)

	rec = postIngest(t, d, samplePacket)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code, "still within cooldown")

	time.Sleep(60 * time.Millisecond)

	rec = postIngest(t, d, samplePacket)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "half_open", br.Snapshot().State)

	rec = postIngest(t, d, samplePacket)
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, "closed", br.Snapshot().State)
}

func TestWeightLiveUpdate(t *testing.T) {
	analyzers := []string{"A", "B"}
	callers := map[string]*fakeCaller{
		"A": {behavior: alwaysAck("A")},
		"B": {behavior: alwaysAck("B")},
	}
	breakers := map[string]*breaker.Breaker{
		"A": newBreaker(t, 100, time.Hour, 1),
		"B": newBreaker(t, 100, time.Hour, 1),
	}
	d := newTestDispatcher(t, analyzers, callers, breakers, map[string]float64{"A": 1, "B": 0})

	for i := 0; i < 50; i++ {
		rec := postIngest(t, d, samplePacket)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ingestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "A", resp.AcceptedBy)
	}

	d.weights.Replace(map[string]float64{"A": 0, "B": 1})

	for i := 0; i < 50; i++ {
		rec := postIngest(t, d, samplePacket)
		require.Equal(t, http.StatusOK, rec.Code)
		var resp ingestResponse
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
		require.Equal(t, "B", resp.AcceptedBy)
	}
}

func TestAdmissionOff(t *testing.T) {
	analyzers := []string{"A"}
	caller := &fakeCaller{behavior: func(int) (*rpc.Ack, error) {
		return nil, &rpc.Error{Kind: rpc.ErrKindStatus, StatusCode: http.StatusServiceUnavailable, Analyzer: "A"}
	}}
	br := newBreaker(t, 3, time.Hour, 1)
	d := newTestDispatcher(t, analyzers, map[string]*fakeCaller{"A": caller}, map[string]*breaker.Breaker{"A": br}, map[string]float64{"A": 1})

	for i := 0; i < 3; i++ {
		rec := postIngest(t, d, samplePacket)
		require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	}
	require.Equal(t, "open", br.Snapshot().State)

	rec := postIngest(t, d, samplePacket)
	require.Equal(t, http.StatusServiceUnavailable, rec.Code)
	require.Contains(t, rec.Body.String(), "all analyzers blocked by circuit breakers")
}

func TestMalformedRequestBody(t *testing.T) {
	d := newTestDispatcher(t, []string{"A"}, map[string]*fakeCaller{"A": {behavior: alwaysAck("A")}},
		map[string]*breaker.Breaker{"A": newBreaker(t, 2, time.Second, 1)}, map[string]float64{"A": 1})

	rec := postIngest(t, d, `{"messages":[]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postIngest(t, d, `{"messages":[{"message":""}]}`)
	require.Equal(t, http.StatusBadRequest, rec.Code)

	rec = postIngest(t, d, `not json`)
	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServeHealth(t *testing.T) {
	d := newTestDispatcher(t, []string{"A", "B"},
		map[string]*fakeCaller{"A": {behavior: alwaysAck("A")}, "B": {behavior: alwaysAck("B")}},
		map[string]*breaker.Breaker{"A": newBreaker(t, 2, time.Second, 1), "B": newBreaker(t, 2, time.Second, 1)},
		map[string]float64{"A": 1, "B": 2})

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	d.ServeHealth(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var resp healthResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.OK)
	require.ElementsMatch(t, []string{"A", "B"}, resp.Analyzers)
	require.Len(t, resp.Breakers, 2)
	require.Equal(t, float64(2), resp.Weights["B"])
}
