package notify

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"
)

// Notifier tells the user that something noteworthy finished.
// Implementations may block until the user has been told.
type Notifier interface {
	Notify(ctx context.Context, message string) error
}

// Func adapts a plain function to Notifier.
type Func func(ctx context.Context, message string) error

func (f Func) Notify(ctx context.Context, message string) error {
	return f(ctx, message)
}

// ConsoleNotifier writes each message on its own line.
type ConsoleNotifier struct {
	mu  sync.Mutex
	out io.Writer
}

// NewConsoleNotifier writes to w, or stdout when w is nil.
func NewConsoleNotifier(w io.Writer) *ConsoleNotifier {
	if w == nil {
		w = os.Stdout
	}
	return &ConsoleNotifier{out: w}
}

func (c *ConsoleNotifier) Notify(_ context.Context, message string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, err := fmt.Fprintln(c.out, message)
	return err
}
