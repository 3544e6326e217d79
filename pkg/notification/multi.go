package notification

import (
	"context"
	"errors"

	"github.com/raykavin/pricewatch/pkg/core"
)

// Multi delivers every alert to all of its notifiers. One failing notifier
// does not prevent the others from being tried.
type Multi []core.Notifier

var _ core.Notifier = Multi(nil)

// NewMulti fans out to notifiers, skipping nil entries
func NewMulti(notifiers ...core.Notifier) Multi {
	multi := make(Multi, 0, len(notifiers))
	for _, notifier := range notifiers {
		if notifier != nil {
			multi = append(multi, notifier)
		}
	}
	return multi
}

// Notify implements core.Notifier
func (m Multi) Notify(ctx context.Context, destinationID, text string) error {
	var errs []error
	for _, notifier := range m {
		if err := notifier.Notify(ctx, destinationID, text); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
