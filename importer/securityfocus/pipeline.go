package securityfocus

import (
	"context"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"
)

// Pipeline lists bugtraq ids, fetches their advisories on Fetchers
// goroutines and hands every advisory to Handle from a single goroutine.
type Pipeline struct {
	Client   *Client
	Fetchers int
	Handle   func(*Advisory) error
}

type Stats struct {
	Listed  int
	Fetched int
	Handled int
	Failed  int
}

// RunPages processes the advisories of the first pages listing pages.
func (p *Pipeline) RunPages(ctx context.Context, pages int) (Stats, error) {
	return p.run(ctx, func(ctx context.Context, ids chan<- string) error {
		for page := 0; page < pages; page++ {
			pageIDs, err := p.Client.ListPage(ctx, page)
			if err != nil {
				slog.Error("could not list advisories", "page", page, "err", err)
				continue
			}
			for _, id := range pageIDs {
				select {
				case ids <- id:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
		}
		return nil
	})
}

// RunIDs processes the given bugtraq ids.
func (p *Pipeline) RunIDs(ctx context.Context, bids []string) (Stats, error) {
	return p.run(ctx, func(ctx context.Context, ids chan<- string) error {
		for _, id := range bids {
			select {
			case ids <- id:
			case <-ctx.Done():
				return ctx.Err()
			}
		}
		return nil
	})
}

func (p *Pipeline) run(ctx context.Context, produce func(context.Context, chan<- string) error) (Stats, error) {
	fetchers := p.Fetchers
	if fetchers < 1 {
		fetchers = 1
	}

	var stats Stats
	var mu sync.Mutex
	count := func(field *int) {
		mu.Lock()
		*field++
		mu.Unlock()
	}

	g, ctx := errgroup.WithContext(ctx)
	ids := make(chan string, fetchers)
	advisories := make(chan *Advisory, fetchers)

	g.Go(func() error {
		defer close(ids)
		return produce(ctx, ids)
	})

	var fetchWG sync.WaitGroup
	for i := 0; i < fetchers; i++ {
		fetchWG.Add(1)
		g.Go(func() error {
			defer fetchWG.Done()
			for id := range ids {
				count(&stats.Listed)
				adv, err := p.Client.FetchAdvisory(ctx, id)
				if err != nil {
					count(&stats.Failed)
					slog.Error("could not fetch advisory", "bid", id, "err", err)
					continue
				}
				count(&stats.Fetched)
				select {
				case advisories <- adv:
				case <-ctx.Done():
					return ctx.Err()
				}
			}
			return nil
		})
	}
	go func() {
		fetchWG.Wait()
		close(advisories)
	}()

	g.Go(func() error {
		for adv := range advisories {
			err := p.Handle(adv)
			if err != nil {
				count(&stats.Failed)
				slog.Error("could not process advisory", "bid", adv.ID, "err", err)
				continue
			}
			count(&stats.Handled)
		}
		return nil
	})

	err := g.Wait()
	return stats, err
}
