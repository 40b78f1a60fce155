package control

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"

	"github.com/redis/go-redis/v9"
	"gopkg.in/yaml.v3"

	"github.com/ridha-boughediri/mys3/pkg/engine"
	"github.com/ridha-boughediri/mys3/pkg/notify"
)

// Manifest is the control-plane document stored in Redis. JSON is accepted
// too, since it is valid YAML.
type Manifest struct {
	Version   string          `yaml:"version"`
	Notifiers []notify.Target `yaml:"notifiers"`
	Filters   []FilterRule    `yaml:"filters"`
	// Blocklist drops any relayed event whose raw form contains one of these.
	Blocklist []string `yaml:"blocklist"`
}

type FilterRule struct {
	ID        string `yaml:"id"`
	Attribute string `yaml:"attribute"`
	Path      string `yaml:"path"`
	Operator  string `yaml:"operator"`
	Value     string `yaml:"value"`
}

// NotifierSink receives the notifier built from a manifest.
type NotifierSink interface {
	UpdateNotifier(n notify.Notifier)
}

// ChainSink receives the filter chain built from a manifest.
type ChainSink interface {
	UpdateChain(chain *engine.ProcessorChain)
}

type Watcher struct {
	redisClient *redis.Client
	key         string
	channel     string
	notifiers   NotifierSink
	chain       ChainSink
	stdout      io.Writer
	log         *slog.Logger
}

type Options struct {
	Key     string
	Channel string
	// Chain may be nil when the relay pipeline is disabled.
	Chain  ChainSink
	Stdout io.Writer
	Log    *slog.Logger
}

func NewWatcher(client *redis.Client, notifiers NotifierSink, opts Options) *Watcher {
	if opts.Log == nil {
		opts.Log = slog.Default()
	}
	return &Watcher{
		redisClient: client,
		key:         opts.Key,
		channel:     opts.Channel,
		notifiers:   notifiers,
		chain:       opts.Chain,
		stdout:      opts.Stdout,
		log:         opts.Log,
	}
}

// Start loads the current manifest, then reloads on every message on the
// control channel until ctx is done.
func (w *Watcher) Start(ctx context.Context) error {
	w.log.Info("control: starting manifest watcher", "key", w.key, "channel", w.channel)

	pubsub := w.redisClient.Subscribe(ctx, w.channel)
	if _, err := pubsub.Receive(ctx); err != nil {
		_ = pubsub.Close()
		return fmt.Errorf("control subscribe: %w", err)
	}

	if err := w.Reload(ctx); err != nil {
		w.log.Warn("control: initial load failed, keeping defaults", "error", err)
	}

	ch := pubsub.Channel()
	go func() {
		defer pubsub.Close()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-ch:
				if !ok {
					return
				}
				w.log.Info("control: received update signal", "payload", msg.Payload)
				if err := w.Reload(ctx); err != nil {
					w.log.Warn("control: reload failed, keeping current state", "error", err)
				}
			}
		}
	}()
	return nil
}

var ErrNoManifest = errors.New("no manifest stored")

// Reload fetches the manifest and applies it. On any error nothing is changed.
func (w *Watcher) Reload(ctx context.Context) error {
	val, err := w.redisClient.Get(ctx, w.key).Result()
	if errors.Is(err, redis.Nil) {
		return ErrNoManifest
	} else if err != nil {
		return fmt.Errorf("fetch manifest: %w", err)
	}

	var manifest Manifest
	if err := yaml.Unmarshal([]byte(val), &manifest); err != nil {
		return fmt.Errorf("invalid manifest: %w", err)
	}
	return w.Apply(manifest)
}

// Apply builds everything from m first and only then swaps it in. A manifest
// without notifiers keeps the current ones.
func (w *Watcher) Apply(m Manifest) error {
	var fan *notify.FanOut
	if len(m.Notifiers) > 0 {
		var err error
		fan, err = notify.Build(m.Notifiers, w.stdout)
		if err != nil {
			return err
		}
	}

	var chain *engine.ProcessorChain
	if w.chain != nil {
		var err error
		chain, err = BuildChain(m.Filters, m.Blocklist)
		if err != nil {
			return err
		}
	}

	if fan != nil {
		w.notifiers.UpdateNotifier(fan)
	}
	if chain != nil {
		w.chain.UpdateChain(chain)
	}
	w.log.Info("control: manifest applied",
		"version", m.Version,
		"notifiers", len(m.Notifiers),
		"filters", len(m.Filters),
		"blocklist", len(m.Blocklist),
	)
	return nil
}

// BuildChain turns filter rules into a processor chain. The blocklist, when
// set, runs first.
func BuildChain(rules []FilterRule, blocklist []string) (*engine.ProcessorChain, error) {
	processors := make([]engine.Processor, 0, len(rules)+1)
	if len(blocklist) > 0 {
		processors = append(processors, engine.NewBlocklistProcessor("blocklist", blocklist))
	}
	for _, rule := range rules {
		proc, err := engine.NewAttributeFilterProcessor(engine.AttributeFilterConfig{
			Name:      rule.ID,
			Attribute: rule.Attribute,
			Path:      rule.Path,
			Operator:  engine.Operator(rule.Operator),
			Value:     rule.Value,
		})
		if err != nil {
			return nil, fmt.Errorf("filter %s: %w", rule.ID, err)
		}
		processors = append(processors, proc)
	}
	return engine.NewProcessorChain(processors...), nil
}
