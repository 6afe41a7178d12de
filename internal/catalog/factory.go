package catalog

import (
	"context"
	"fmt"

	"github.com/magefree/tabletop-server/internal/config"
	"go.uber.org/zap"
)

// New builds the adapter chain described by cfg. The returned close function
// releases any database pool and is always safe to call.
func New(ctx context.Context, cfg config.CatalogConfig, logger *zap.Logger) (Adapter, func(), error) {
	closer := func() {}

	var adapter Adapter
	switch cfg.Provider {
	case "moxfield":
		adapter = NewMoxfieldClient(cfg.BaseURL, nil, logger.Named("moxfield"))
	case "static", "":
		adapter = NewPlaceholderAdapter()
	default:
		return nil, closer, fmt.Errorf("unknown catalog provider %q", cfg.Provider)
	}

	if cfg.DatabaseURL != "" {
		lookup, err := NewPostgresCardLookup(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, closer, err
		}
		closer = lookup.Close
		adapter = NewEnricher(adapter, lookup, logger.Named("enricher"))
		logger.Info("card metadata enrichment enabled")
	}

	adapter = Deduplicate(WithTimeout(adapter, cfg.Timeout))

	logger.Info("catalog adapter initialized",
		zap.String("provider", cfg.Provider),
		zap.Duration("timeout", cfg.Timeout),
	)
	return adapter, closer, nil
}
