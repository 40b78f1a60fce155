package engine

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/ridha-boughediri/mys3/pkg/bus"
	"github.com/ridha-boughediri/mys3/pkg/model"
)

// mockPublisher captures published events for verification.
type mockPublisher struct {
	mu     sync.Mutex
	names  []string
	verbs  []string
	failOn string
}

func (m *mockPublisher) Publish(_ context.Context, name string, evt *model.CompletionEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.failOn != "" && evt.Verb() == m.failOn {
		return errors.New("bus closed")
	}
	m.names = append(m.names, name)
	m.verbs = append(m.verbs, evt.Verb())
	return nil
}

func (m *mockPublisher) captured() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]string(nil), m.verbs...)
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("Timed out waiting for pipeline")
}

func TestPipeline_Integration(t *testing.T) {
	buf, _ := NewRingBuffer(128)
	out := &mockPublisher{}

	skipObjects, err := NewAttributeFilterProcessor(AttributeFilterConfig{
		Name:      "skip-objects",
		Attribute: "path",
		Operator:  OpContains,
		Value:     "/object",
	})
	if err != nil {
		t.Fatalf("Failed to create processor: %v", err)
	}

	p := NewPipeline(buf, NewProcessorChain(skipObjects), out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	_ = buf.Push([]byte(`{"requestConfig":{"verb":"POST","path":"/bucket"}}`))
	_ = buf.Push([]byte(`{"requestConfig":{"verb":"POST","path":"/photos/object"}}`)) // filtered
	_ = buf.Push([]byte(`not json`))                                                  // malformed
	_ = buf.Push([]byte(`{"id":"e-1","detail":{"requestConfig":{"verb":"DELETE","path":"/bucket"}}}`))

	waitFor(t, func() bool {
		pub, filt, bad := p.Stats()
		return pub == 2 && filt == 1 && bad == 1
	})

	got := out.captured()
	if len(got) != 2 || got[0] != "POST" || got[1] != "DELETE" {
		t.Fatalf("Expected [POST DELETE], got %v", got)
	}
	for _, name := range out.names {
		if name != bus.EventRequestFinished {
			t.Errorf("Published on %q, want %q", name, bus.EventRequestFinished)
		}
	}
}

func TestPipeline_UpdateChain(t *testing.T) {
	buf, _ := NewRingBuffer(16)
	out := &mockPublisher{}
	p := NewPipeline(buf, nil, out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	_ = buf.Push([]byte(`{"requestConfig":{"verb":"GET"}}`))
	waitFor(t, func() bool { return len(out.captured()) == 1 })

	dropGets, _ := NewAttributeFilterProcessor(AttributeFilterConfig{Name: "drop-get", Attribute: "verb", Value: "GET"})
	p.UpdateChain(NewProcessorChain(dropGets))

	_ = buf.Push([]byte(`{"requestConfig":{"verb":"GET"}}`))
	_ = buf.Push([]byte(`{"requestConfig":{"verb":"POST"}}`))
	waitFor(t, func() bool { return len(out.captured()) == 2 })

	if got := out.captured(); got[1] != "POST" {
		t.Errorf("Expected POST after chain swap, got %v", got)
	}
}

func TestPipeline_PublishErrorIsNotFatal(t *testing.T) {
	buf, _ := NewRingBuffer(16)
	out := &mockPublisher{failOn: "PUT"}
	p := NewPipeline(buf, nil, out, nil)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	_ = buf.Push([]byte(`{"requestConfig":{"verb":"PUT"}}`))
	_ = buf.Push([]byte(`{"requestConfig":{"verb":"DELETE"}}`))
	waitFor(t, func() bool { return len(out.captured()) == 1 })

	if got := out.captured(); got[0] != "DELETE" {
		t.Errorf("Expected DELETE, got %v", got)
	}
}

func TestPipeline_StopsOnCancel(t *testing.T) {
	buf, _ := NewRingBuffer(16)
	p := NewPipeline(buf, nil, &mockPublisher{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	p.Start(ctx)
	cancel()

	done := make(chan struct{})
	go func() {
		p.Wait()
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Pipeline did not stop after cancel")
	}
}

func TestPipeline_BypassAboveHighWater(t *testing.T) {
	buf, _ := NewRingBuffer(16)
	out := &mockPublisher{}
	chain := NewProcessorChain(NewBlocklistProcessor("block", []string{"scratch"}))
	p := NewPipeline(buf, chain, out, nil)

	// 14 of 16 slots: the first frame is handled at 13/16 usage, above 80%.
	_ = buf.Push([]byte(`{"requestConfig":{"verb":"DELETE","path":"/bucket?name=scratch"}}`))
	for i := 0; i < 12; i++ {
		_ = buf.Push([]byte(`{"requestConfig":{"verb":"POST","path":"/bucket"}}`))
	}
	// handled once usage is back under the threshold
	_ = buf.Push([]byte(`{"requestConfig":{"verb":"DELETE","path":"/bucket?name=scratch"}}`))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p.Start(ctx)

	waitFor(t, func() bool {
		pub, filt, _ := p.Stats()
		return pub == 13 && filt == 1
	})

	got := out.captured()
	if got[0] != "DELETE" {
		t.Errorf("Expected blocklisted frame to bypass the chain under pressure, got %v", got)
	}
	for _, verb := range got[1:] {
		if verb != "POST" {
			t.Errorf("Expected blocklisted frame to be filtered under the threshold, got %v", got)
			break
		}
	}
}
