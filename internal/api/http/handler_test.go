package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/cloudwego/hertz/pkg/app/server"
	"github.com/cloudwego/hertz/pkg/common/ut"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-platform/internal/incident"
	"triage-platform/internal/tool/registry"
	"triage-platform/internal/triage"
	"triage-platform/internal/triage/checkpoint"
	"triage-platform/internal/triage/engine"
	"triage-platform/internal/triage/guardrail"
	"triage-platform/internal/triage/queue"
	"triage-platform/internal/triage/results"
	"triage-platform/pkg/config"
)

// plainGW 全部阶段返回固定文本的网关替身
type plainGW struct{}

func (plainGW) Invoke(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	sys := msgs[0].Content
	if strings.Contains(sys, "remediation planner") {
		return schema.AssistantMessage("Hypothesis: connection pool exhausted\nAction: restart connection pool\nConfidence: 88%", nil), nil
	}
	if strings.Contains(sys, "change-safety reviewer") {
		return schema.AssistantMessage("AUTO_OK\nbounded restart", nil), nil
	}
	return schema.AssistantMessage("summary", nil), nil
}

type fixture struct {
	server  *server.Hertz
	queue   *queue.Queue
	results *results.Store
	engine  *engine.Engine
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	res := results.New()
	eng := engine.New(engine.Config{
		Gateway:     plainGW{},
		Registry:    registry.New(),
		Gate:        guardrail.New(config.GuardrailConfig{}, plainGW{}, nil),
		Checkpoints: checkpoint.NewMemStore(),
		Results:     res,
		Incidents:   incident.NewMemStore(),
	})
	q := queue.New(eng, 1, 8, nil)
	q.Start(context.Background())
	t.Cleanup(q.Stop)

	h := NewHandler(q, eng, res, nil)
	return &fixture{
		server:  NewRouter(h).Build(":0"),
		queue:   q,
		results: res,
		engine:  eng,
	}
}

func perform(f *fixture, method, url string, body []byte) *ut.ResponseRecorder {
	return ut.PerformRequest(f.server.Engine, method, url,
		&ut.Body{Body: bytes.NewReader(body), Len: len(body)},
		ut.Header{Key: "Content-Type", Value: "application/json"})
}

func TestHealthz(t *testing.T) {
	f := newFixture(t)
	w := perform(f, "GET", "/healthz", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
}

func TestMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	w := perform(f, "GET", "/metrics", nil)
	assert.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "triage_queue_depth")
}

func TestSubmitAlertInvalidBody(t *testing.T) {
	f := newFixture(t)
	w := perform(f, "POST", "/api/alerts/", []byte(`{"service":""}`))
	assert.Equal(t, 400, w.Result().StatusCode())
}

func TestSubmitAlertAccepted(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"service":"reporting-service","severity":"low","alert_type":"cpu_anomaly"}`)
	w := perform(f, "POST", "/api/alerts/", body)
	require.Equal(t, 202, w.Result().StatusCode())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	id, _ := resp["triage_id"].(string)
	require.NotEmpty(t, id)

	require.Eventually(t, func() bool {
		_, err := f.results.Get(id)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	w = perform(f, "GET", "/api/triages/"+id, nil)
	assert.Equal(t, 200, w.Result().StatusCode())

	var res triage.Result
	require.NoError(t, json.Unmarshal(w.Result().Body(), &res))
	assert.Equal(t, triage.StatusAutoApproved, res.Status)
}

func TestSubmitSyntheticAlert(t *testing.T) {
	f := newFixture(t)
	w := perform(f, "POST", "/api/alerts/synthetic", []byte(`{"service":"search-service"}`))
	require.Equal(t, 202, w.Result().StatusCode())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	assert.Equal(t, "search-service", resp["service"])
}

func TestGetTriageNotFound(t *testing.T) {
	f := newFixture(t)
	w := perform(f, "GET", "/api/triages/missing", nil)
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestApproveLifecycle(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"service":"checkout","severity":"critical","alert_type":"latency_spike",` +
		`"metric_snapshot":{"latency_p95_ms":800,"latency_baseline_ms":100}}`)
	w := perform(f, "POST", "/api/alerts/", body)
	require.Equal(t, 202, w.Result().StatusCode())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	id := resp["triage_id"].(string)

	require.Eventually(t, func() bool {
		r, err := f.results.Get(id)
		return err == nil && r.Status == triage.StatusPendingApproval
	}, 5*time.Second, 10*time.Millisecond)

	w = perform(f, "POST", fmt.Sprintf("/api/triages/%s/approve", id), nil)
	require.Equal(t, 200, w.Result().StatusCode())

	var res triage.Result
	require.NoError(t, json.Unmarshal(w.Result().Body(), &res))
	assert.Equal(t, triage.StatusApproved, res.Status)
	assert.NotNil(t, res.CompletedAt)

	// 再次批准冲突
	w = perform(f, "POST", fmt.Sprintf("/api/triages/%s/approve", id), nil)
	assert.Equal(t, 409, w.Result().StatusCode())
}

func TestApproveUnknownTriage(t *testing.T) {
	f := newFixture(t)
	w := perform(f, "POST", "/api/triages/no-such-id/approve", nil)
	assert.Equal(t, 404, w.Result().StatusCode())
}

func TestRejectSuspendedTriage(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"service":"checkout","severity":"critical","alert_type":"latency_spike"}`)
	w := perform(f, "POST", "/api/alerts/", body)
	require.Equal(t, 202, w.Result().StatusCode())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	id := resp["triage_id"].(string)

	require.Eventually(t, func() bool {
		r, err := f.results.Get(id)
		return err == nil && r.Status == triage.StatusPendingApproval
	}, 5*time.Second, 10*time.Millisecond)

	w = perform(f, "POST", fmt.Sprintf("/api/triages/%s/reject", id), []byte(`{"reason":"too risky"}`))
	require.Equal(t, 200, w.Result().StatusCode())

	var res triage.Result
	require.NoError(t, json.Unmarshal(w.Result().Body(), &res))
	assert.Equal(t, triage.StatusRejected, res.Status)
}

func TestTriageMetricsEndpoint(t *testing.T) {
	f := newFixture(t)
	body := []byte(`{"service":"reporting-service","severity":"low","alert_type":"cpu_anomaly"}`)
	w := perform(f, "POST", "/api/alerts/", body)
	require.Equal(t, 202, w.Result().StatusCode())

	var resp map[string]any
	require.NoError(t, json.Unmarshal(w.Result().Body(), &resp))
	id := resp["triage_id"].(string)

	require.Eventually(t, func() bool {
		_, err := f.results.Get(id)
		return err == nil
	}, 5*time.Second, 10*time.Millisecond)

	w = perform(f, "GET", fmt.Sprintf("/api/triages/%s/metrics", id), nil)
	require.Equal(t, 200, w.Result().StatusCode())
	assert.Contains(t, string(w.Result().Body()), "plan_remediation")

	w = perform(f, "GET", "/api/triages/unknown/metrics", nil)
	assert.Equal(t, 404, w.Result().StatusCode())
}
