package gateway

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"

	"github.com/cloudwego/eino/schema"
)

type countingGateway struct {
	mu       sync.Mutex
	inflight int32
	peak     int32
	calls    int
}

func (c *countingGateway) Invoke(ctx context.Context, messages []*schema.Message, tools []*schema.ToolInfo) (*schema.Message, error) {
	cur := atomic.AddInt32(&c.inflight, 1)
	for {
		p := atomic.LoadInt32(&c.peak)
		if cur <= p || atomic.CompareAndSwapInt32(&c.peak, p, cur) {
			break
		}
	}
	c.mu.Lock()
	c.calls++
	c.mu.Unlock()
	atomic.AddInt32(&c.inflight, -1)
	return schema.AssistantMessage("ok", nil), nil
}

func TestRateLimitedPassthrough(t *testing.T) {
	inner := &countingGateway{}
	g := NewRateLimited(inner, 0, 0, 0)

	resp, err := g.Invoke(context.Background(), []*schema.Message{schema.UserMessage("hi")}, nil)
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if resp.Content != "ok" {
		t.Errorf("content = %q", resp.Content)
	}
	if inner.calls != 1 {
		t.Errorf("calls = %d", inner.calls)
	}
}

func TestRateLimitedHonorsCancel(t *testing.T) {
	inner := &countingGateway{}
	g := NewRateLimited(inner, 0.0001, 1, 1)

	// 耗掉令牌
	if _, err := g.Invoke(context.Background(), nil, nil); err != nil {
		t.Fatalf("first invoke: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := g.Invoke(ctx, nil, nil); err == nil {
		t.Fatal("expected error after cancel")
	}
}

func TestRateLimitedConcurrent(t *testing.T) {
	inner := &countingGateway{}
	g := NewRateLimited(inner, 0, 0, 4)

	var wg sync.WaitGroup
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = g.Invoke(context.Background(), nil, nil)
		}()
	}
	wg.Wait()

	if inner.calls != 32 {
		t.Errorf("calls = %d", inner.calls)
	}
}
