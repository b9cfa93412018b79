package listing

import (
	"context"
	"encoding/json"

	"github.com/diagnosis/ukrbe-market/pkg/events"
	"github.com/diagnosis/ukrbe-market/pkg/logger"
)

// Watch refreshes the cache of d whenever the remote store announces a change
// there. onChange, when set, receives each event after the refresh. The
// subscription ends when ctx is done.
func (s *Syncer) Watch(ctx context.Context, d Domain, sub events.Subscriber, onChange func(events.ListingChangedEvent)) error {
	if s.mode != ModeRemote || sub == nil {
		return nil
	}

	unsubscribe, err := sub.Subscribe(events.ListingWildcard(string(d)), func(msg *events.Message) {
		var evt events.ListingChangedEvent
		if err := json.Unmarshal(msg.Data, &evt); err != nil {
			logger.Warn("dropping malformed listing event", "subject", msg.Subject, "error", err)
			return
		}
		if evt.Action == "" {
			_, evt.Action, _ = events.ParseListingSubject(msg.Subject)
		}

		if _, err, _ := s.group.Do(string(d)+"|watch", func() (interface{}, error) {
			return s.fetch(ctx, d, Filter{})
		}); err != nil {
			logger.Warn("refresh on listing event failed", "domain", d, "action", evt.Action, "error", err)
			return
		}
		if onChange != nil {
			onChange(evt)
		}
	})
	if err != nil {
		return err
	}

	go func() {
		<-ctx.Done()
		if err := unsubscribe(); err != nil {
			logger.Warn("listing unsubscribe failed", "domain", d, "error", err)
		}
	}()
	logger.Info("watching listing changes", "domain", d)
	return nil
}
