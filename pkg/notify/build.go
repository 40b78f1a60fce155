package notify

import (
	"fmt"
	"io"
)

// Target describes one notifier, as written in config files and control manifests.
type Target struct {
	Type    string            `yaml:"type" json:"type" koanf:"type"`
	URL     string            `yaml:"url" json:"url" koanf:"url"`
	Title   string            `yaml:"title" json:"title" koanf:"title"`
	Headers map[string]string `yaml:"headers" json:"headers" koanf:"headers"`
}

const (
	TypeConsole = "console"
	TypeDesktop = "desktop"
	TypeWebhook = "webhook"
)

// Build turns targets into a single fan-out notifier. With no targets the
// console notifier writing to stdout is used.
func Build(targets []Target, stdout io.Writer) (*FanOut, error) {
	if len(targets) == 0 {
		return NewFanOut(NewConsoleNotifier(stdout)), nil
	}

	notifiers := make([]Notifier, 0, len(targets))
	for i, t := range targets {
		switch t.Type {
		case TypeConsole:
			notifiers = append(notifiers, NewConsoleNotifier(stdout))
		case TypeDesktop:
			notifiers = append(notifiers, NewDesktopNotifier(t.Title))
		case TypeWebhook:
			if t.URL == "" {
				return nil, fmt.Errorf("notifier %d: webhook requires url", i)
			}
			notifiers = append(notifiers, NewWebhookNotifier(t.URL, t.Headers))
		default:
			return nil, fmt.Errorf("notifier %d: unknown type %q", i, t.Type)
		}
	}
	return NewFanOut(notifiers...), nil
}
