package notify

import (
	"context"

	"github.com/gen2brain/beeep"
)

const DefaultDesktopTitle = "mys3"

// DesktopNotifier raises an OS alert. Support varies by platform, so a headless
// server usually pairs it with the console notifier.
type DesktopNotifier struct {
	title string
	alert func(title, message string) error
}

func NewDesktopNotifier(title string) *DesktopNotifier {
	if title == "" {
		title = DefaultDesktopTitle
	}
	return &DesktopNotifier{
		title: title,
		alert: func(title, message string) error {
			return beeep.Alert(title, message, "")
		},
	}
}

func (d *DesktopNotifier) Notify(_ context.Context, message string) error {
	return d.alert(d.title, message)
}
