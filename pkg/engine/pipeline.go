package engine

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ridha-boughediri/mys3/pkg/bus"
	"github.com/ridha-boughediri/mys3/pkg/model"
)

// Publisher is the part of the event bus the pipeline needs.
type Publisher interface {
	Publish(ctx context.Context, name string, evt *model.CompletionEvent) error
}

// bypassRatio is the buffer fill level above which the chain is skipped to drain faster.
const bypassRatio = 0.80

// Pipeline relays raw frames from the ingest buffer, through the processor
// chain, onto the bus. A single worker keeps events in arrival order.
type Pipeline struct {
	buffer *RingBuffer
	chain  atomic.Pointer[ProcessorChain]
	out    Publisher
	log    *slog.Logger

	idle time.Duration
	wg   sync.WaitGroup

	published atomic.Uint64
	filtered  atomic.Uint64
	malformed atomic.Uint64
}

func NewPipeline(buf *RingBuffer, chain *ProcessorChain, out Publisher, log *slog.Logger) *Pipeline {
	if chain == nil {
		chain = NewProcessorChain()
	}
	if log == nil {
		log = slog.Default()
	}
	p := &Pipeline{
		buffer: buf,
		out:    out,
		log:    log,
		idle:   time.Millisecond,
	}
	p.chain.Store(chain)
	return p
}

// UpdateChain hot-swaps the processor chain.
func (p *Pipeline) UpdateChain(chain *ProcessorChain) {
	p.chain.Store(chain)
	p.log.Info("pipeline: processor chain hot-swapped", "processors", chain.Len())
}

// Start launches the worker. It stops once ctx is done and the buffer is drained.
func (p *Pipeline) Start(ctx context.Context) {
	p.log.Info("starting relay pipeline")
	p.wg.Add(1)
	go p.worker(ctx)
}

// Wait blocks until the worker has exited.
func (p *Pipeline) Wait() {
	p.wg.Wait()
}

// Stats returns published, filtered and malformed counts.
func (p *Pipeline) Stats() (published, filtered, malformed uint64) {
	return p.published.Load(), p.filtered.Load(), p.malformed.Load()
}

func (p *Pipeline) worker(ctx context.Context) {
	defer p.wg.Done()
	pCtx := &ProcessingContext{Context: ctx, Log: p.log}

	for {
		frame := p.buffer.Pop()
		if frame == nil {
			select {
			case <-ctx.Done():
				return
			case <-time.After(p.idle):
			}
			continue
		}
		p.handle(pCtx, frame)
	}
}

func (p *Pipeline) handle(pCtx *ProcessingContext, frame []byte) {
	usage := p.buffer.Usage()
	capacity := p.buffer.Capacity()

	if float64(usage) <= float64(capacity)*bypassRatio {
		processed, drop, err := p.chain.Load().Process(pCtx, frame)
		if err != nil {
			p.log.Warn("process error", "operation", "relay_process", "error", err)
			return
		}
		if drop {
			p.filtered.Add(1)
			return
		}
		frame = processed
	}

	evt, err := model.DecodeCompletionEvent(frame)
	if err != nil {
		p.malformed.Add(1)
		p.log.Warn("dropping malformed frame", "operation", "relay_decode", "error", err)
		return
	}

	// publish with a detached context so events already buffered at shutdown still go out
	if err := p.out.Publish(context.WithoutCancel(pCtx), bus.EventRequestFinished, evt); err != nil {
		p.log.Warn("publish failed", "operation", "relay_publish", "event_id", evt.ID, "error", err)
		return
	}
	p.published.Add(1)
}
