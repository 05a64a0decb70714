package extract

import (
	"context"

	"gktracker/internal/manifest"
	"gktracker/lib/scrapers/fbref"
)

// Fetcher is the remote source the pipeline scrapes.
type Fetcher interface {
	// Discover returns every entity currently listed by the source.
	Discover(ctx context.Context) ([]manifest.Entity, error)
	// FetchTable returns the tabular data behind url.
	FetchTable(ctx context.Context, url string) (fbref.Table, error)
}

// FbrefFetcher discovers goalkeepers from a set of competition pages.
type FbrefFetcher struct {
	Client        *fbref.Client
	DiscoveryUrls []string
}

func (f FbrefFetcher) Discover(ctx context.Context) ([]manifest.Entity, error) {
	players, err := f.Client.DiscoverPlayers(ctx, f.DiscoveryUrls)
	if err != nil {
		return nil, err
	}
	entities := make([]manifest.Entity, len(players))
	for i, p := range players {
		entities[i] = manifest.Entity{
			Identifier:       p.Id,
			Slug:             p.Slug,
			SourceUrl:        p.Url,
			FetchUrlTemplate: p.MatchLogsUrlTemplate,
		}
	}
	return entities, nil
}

func (f FbrefFetcher) FetchTable(ctx context.Context, url string) (fbref.Table, error) {
	return f.Client.FetchTable(ctx, url)
}
