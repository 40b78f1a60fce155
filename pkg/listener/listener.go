// Package listener shows a success notice after bucket create and delete
// requests complete.
//
// The listener subscribes once to the request-finished event and looks at a
// single field of each event, requestConfig.verb. POST and DELETE produce a
// fixed message; every other verb, and an event without the field, is ignored.
package listener

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/ridha-boughediri/mys3/pkg/bus"
	"github.com/ridha-boughediri/mys3/pkg/model"
	"github.com/ridha-boughediri/mys3/pkg/notify"
)

const (
	MsgBucketCreated = "Bucket created successfully!"
	MsgBucketDeleted = "Bucket deleted successfully!"
)

// MessageFor maps a verb to its notice. ok is false when the verb is not notable.
func MessageFor(verb string) (msg string, ok bool) {
	switch verb {
	case "POST":
		return MsgBucketCreated, true
	case "DELETE":
		return MsgBucketDeleted, true
	default:
		return "", false
	}
}

type notifierBox struct {
	n notify.Notifier
}

// Listener holds no per-event state. The notifier can be swapped at runtime.
type Listener struct {
	log      *slog.Logger
	notifier atomic.Pointer[notifierBox]

	mu  sync.Mutex
	sub *bus.Subscription
}

func New(n notify.Notifier, log *slog.Logger) *Listener {
	if log == nil {
		log = slog.Default()
	}
	l := &Listener{log: log}
	l.notifier.Store(&notifierBox{n: n})
	return l
}

// Install subscribes to request-finished on b. Calling it again while
// installed does nothing, so one event never yields two notices.
func (l *Listener) Install(b bus.Bus) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub != nil {
		return nil
	}
	sub, err := b.Subscribe(bus.EventRequestFinished, l.Handle)
	if err != nil {
		return err
	}
	l.sub = sub
	l.log.Info("notification listener installed", "event", bus.EventRequestFinished)
	return nil
}

// Uninstall removes the subscription. It is a no-op when not installed.
func (l *Listener) Uninstall() {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.sub == nil {
		return
	}
	l.sub.Unsubscribe()
	l.sub = nil
}

// Installed reports whether the listener currently holds a subscription.
func (l *Listener) Installed() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.sub != nil
}

// UpdateNotifier hot-swaps where notices go.
func (l *Listener) UpdateNotifier(n notify.Notifier) {
	l.notifier.Store(&notifierBox{n: n})
	l.log.Info("notification listener: notifier hot-swapped")
}

// Handle reacts to one completion event.
func (l *Listener) Handle(ctx context.Context, evt *model.CompletionEvent) {
	msg, ok := MessageFor(evt.Verb())
	if !ok {
		return
	}

	n := l.notifier.Load().n
	if n == nil {
		return
	}
	if err := n.Notify(ctx, msg); err != nil {
		l.log.WarnContext(ctx, "notify failed",
			"operation", "notify",
			"outcome", "failure",
			"event_id", evt.ID,
			"error", err,
		)
	}
}
