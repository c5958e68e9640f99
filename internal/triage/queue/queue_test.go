package queue

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"triage-platform/internal/alert"
	"triage-platform/internal/incident"
	"triage-platform/internal/tool/registry"
	"triage-platform/internal/triage"
	"triage-platform/internal/triage/checkpoint"
	"triage-platform/internal/triage/engine"
	"triage-platform/internal/triage/guardrail"
	"triage-platform/internal/triage/results"
	"triage-platform/pkg/config"
)

// textGW 对任何请求返回固定文本的网关替身
type textGW struct{}

func (textGW) Invoke(ctx context.Context, msgs []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	sys := msgs[0].Content
	if strings.Contains(sys, "remediation planner") {
		return schema.AssistantMessage("Hypothesis: cache stampede\nAction: warm the cache\nConfidence: 85%", nil), nil
	}
	if strings.Contains(sys, "change-safety reviewer") {
		return schema.AssistantMessage("AUTO_OK\nread-only mitigation", nil), nil
	}
	return schema.AssistantMessage("summary", nil), nil
}

func newQueueFixture(concurrency, size int) (*Queue, *results.Store) {
	res := results.New()
	eng := engine.New(engine.Config{
		Gateway:     textGW{},
		Registry:    registry.New(),
		Gate:        guardrail.New(config.GuardrailConfig{}, textGW{}, nil),
		Checkpoints: checkpoint.NewMemStore(),
		Results:     res,
		Incidents:   incident.NewMemStore(),
	})
	return New(eng, concurrency, size, nil), res
}

func task(i int) Task {
	return Task{
		TriageID: fmt.Sprintf("q-%d", i),
		Alert: alert.Payload{
			Service:   "reporting-service",
			Severity:  alert.SeverityLow,
			AlertType: alert.TypeCPUAnomaly,
		},
	}
}

func TestQueueProcessesSubmittedAlerts(t *testing.T) {
	q, res := newQueueFixture(2, 16)
	q.Start(context.Background())
	defer q.Stop()

	for i := 0; i < 5; i++ {
		require.NoError(t, q.Submit(task(i)))
	}

	require.Eventually(t, func() bool {
		return len(res.List()) == 5
	}, 5*time.Second, 10*time.Millisecond)

	for _, r := range res.List() {
		assert.Equal(t, triage.StatusAutoApproved, r.Status)
	}
}

func TestQueueFullRejectsWithoutBlocking(t *testing.T) {
	// 不启动 Worker，队列只装得下 size 个
	q, _ := newQueueFixture(1, 2)

	require.NoError(t, q.Submit(task(0)))
	require.NoError(t, q.Submit(task(1)))

	err := q.Submit(task(2))
	assert.ErrorIs(t, err, ErrQueueFull)
	assert.Equal(t, 2, q.Depth())
}

func TestQueueStopDrainsPending(t *testing.T) {
	q, res := newQueueFixture(1, 16)
	q.Start(context.Background())

	for i := 0; i < 4; i++ {
		require.NoError(t, q.Submit(task(i)))
	}
	q.Stop()

	// Stop 返回时已入队的任务全部处理完毕
	assert.Len(t, res.List(), 4)
}

func TestQueueRejectsAfterStop(t *testing.T) {
	q, _ := newQueueFixture(1, 4)
	q.Start(context.Background())
	q.Stop()

	err := q.Submit(task(0))
	assert.ErrorIs(t, err, ErrStopped)
}

func TestQueueStopIdempotent(t *testing.T) {
	q, _ := newQueueFixture(1, 4)
	q.Start(context.Background())
	q.Stop()
	q.Stop()
}
