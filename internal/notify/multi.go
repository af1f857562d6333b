package notify

import (
	"context"

	"greenpulse/internal/compliance"
)

// MultiNotifier dispatches committed updates to multiple notifiers.
type MultiNotifier struct {
	notifiers []compliance.Notifier
}

// NewMultiNotifier constructs a MultiNotifier.
func NewMultiNotifier(notifiers ...compliance.Notifier) *MultiNotifier {
	return &MultiNotifier{notifiers: notifiers}
}

// Notify forwards the update to all notifiers.
func (m *MultiNotifier) Notify(ctx context.Context, update compliance.Update) {
	if m == nil {
		return
	}
	for _, notifier := range m.notifiers {
		if notifier != nil {
			notifier.Notify(ctx, update)
		}
	}
}
