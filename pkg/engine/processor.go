package engine

// Processor inspects one raw completion event before it reaches the bus.
type Processor interface {
	// Process returns the (possibly rewritten) frame and whether it should be
	// dropped. A dropped frame is never published.
	Process(ctx *ProcessingContext, frame []byte) ([]byte, bool, error)

	// Name identifies the processor in logs.
	Name() string
}
