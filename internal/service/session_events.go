package service

import (
	"context"

	"github.com/formbricks/forms/internal/datatypes"
	"github.com/formbricks/forms/internal/session"
)

// sessionEvents turns session changes into response events. Navigation and
// draft saves are not published.
type sessionEvents struct {
	publisher MessagePublisher
}

func (n *sessionEvents) SessionChanged(ctx context.Context, change session.Change) {
	switch change.Kind {
	case session.ChangeAnswers:
		if len(change.ChangedFields) == 0 {
			return
		}

		n.publisher.PublishEventWithChangedFields(ctx, datatypes.ResponseUpdated, change.Response, change.ChangedFields)
	case session.ChangeSubmitted:
		n.publisher.PublishEvent(ctx, datatypes.ResponseSubmitted, change.Response)
	case session.ChangeNavigation, session.ChangeSaved:
	}
}

var _ session.Notifier = (*sessionEvents)(nil)
