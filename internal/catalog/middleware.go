package catalog

import (
	"context"
	"errors"
	"time"

	"github.com/magefree/tabletop-server/internal/zone"
	"golang.org/x/sync/singleflight"
)

// timeoutAdapter bounds every resolution.
type timeoutAdapter struct {
	next    Adapter
	timeout time.Duration
}

// WithTimeout bounds each Resolve call by timeout and reports expiry as a
// KindTimeout error.
func WithTimeout(next Adapter, timeout time.Duration) Adapter {
	return &timeoutAdapter{next: next, timeout: timeout}
}

func (a *timeoutAdapter) Resolve(ctx context.Context, deckURL string) (*zone.Deck, error) {
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	deck, err := a.next.Resolve(ctx, deckURL)
	if err == nil {
		return deck, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) && KindOf(err) != KindTimeout {
		return nil, &Error{Kind: KindTimeout, URL: deckURL, Err: err}
	}
	return nil, err
}

// dedupAdapter shares one in-flight resolution among concurrent callers
// asking for the same URL.
type dedupAdapter struct {
	next  Adapter
	group singleflight.Group
}

// Deduplicate collapses concurrent Resolve calls for the same URL. Each
// caller still honours its own context.
func Deduplicate(next Adapter) Adapter {
	return &dedupAdapter{next: next}
}

func (a *dedupAdapter) Resolve(ctx context.Context, deckURL string) (*zone.Deck, error) {
	ch := a.group.DoChan(deckURL, func() (any, error) {
		return a.next.Resolve(context.WithoutCancel(ctx), deckURL)
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return cloneDeck(res.Val.(*zone.Deck)), nil
	case <-ctx.Done():
		return nil, &Error{Kind: KindOf(ctx.Err()), URL: deckURL, Err: ctx.Err()}
	}
}
