package notify

import (
	"context"
	"errors"
	"sync"
)

// FanOut delivers a message to several notifiers in parallel and waits for all of them.
type FanOut struct {
	notifiers []Notifier
}

func NewFanOut(notifiers ...Notifier) *FanOut {
	return &FanOut{
		notifiers: notifiers,
	}
}

// Len is the number of wrapped notifiers.
func (f *FanOut) Len() int {
	return len(f.notifiers)
}

func (f *FanOut) Notify(ctx context.Context, message string) error {
	var wg sync.WaitGroup
	errs := make([]error, len(f.notifiers))

	for i, n := range f.notifiers {
		wg.Add(1)
		go func(idx int, n Notifier) {
			defer wg.Done()
			errs[idx] = n.Notify(ctx, message)
		}(i, n)
	}
	wg.Wait()

	return errors.Join(errs...)
}
