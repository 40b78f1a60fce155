package engine

// ProcessorChain runs processors in order.
type ProcessorChain struct {
	processors []Processor
}

func NewProcessorChain(processors ...Processor) *ProcessorChain {
	return &ProcessorChain{
		processors: processors,
	}
}

// Len is the number of processors in the chain.
func (c *ProcessorChain) Len() int {
	return len(c.processors)
}

// Process stops at the first processor that drops the frame or fails.
func (c *ProcessorChain) Process(ctx *ProcessingContext, frame []byte) ([]byte, bool, error) {
	var drop bool
	var err error

	for _, p := range c.processors {
		frame, drop, err = p.Process(ctx, frame)
		if err != nil {
			return frame, false, err
		}
		if drop {
			if ctx != nil && ctx.Log != nil {
				ctx.Log.Debug("event dropped", "processor", p.Name())
			}
			return frame, true, nil
		}
	}

	return frame, false, nil
}
