package events

import (
	"context"

	"github.com/lukasbauer/apriori/internal/followup"
)

// Fanout publishes each event to every sink in order.
type Fanout []followup.EventSink

// Publish implements followup.EventSink.
func (f Fanout) Publish(ctx context.Context, ev followup.LifecycleEvent) {
	for _, s := range f {
		if s != nil {
			s.Publish(ctx, ev)
		}
	}
}
