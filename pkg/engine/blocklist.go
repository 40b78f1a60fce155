package engine

import (
	"bytes"
)

// BlocklistProcessor drops any raw event that contains one of its byte
// sequences, e.g. a test bucket name that should never raise a notice.
type BlocklistProcessor struct {
	name  string
	block [][]byte
}

func NewBlocklistProcessor(name string, words []string) *BlocklistProcessor {
	block := make([][]byte, 0, len(words))
	for _, w := range words {
		if w == "" {
			continue
		}
		block = append(block, []byte(w))
	}
	return &BlocklistProcessor{
		name:  name,
		block: block,
	}
}

func (b *BlocklistProcessor) Name() string {
	return b.name
}

func (b *BlocklistProcessor) Process(_ *ProcessingContext, frame []byte) ([]byte, bool, error) {
	for _, word := range b.block {
		if bytes.Contains(frame, word) {
			return frame, true, nil
		}
	}
	return frame, false, nil
}
