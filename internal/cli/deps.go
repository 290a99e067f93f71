package cli

import (
	"fmt"

	"github.com/dakshaarvind-fetch/RealEstate/internal/intent"
	"github.com/dakshaarvind-fetch/RealEstate/internal/listings"
	"github.com/dakshaarvind-fetch/RealEstate/internal/metrics"
	"github.com/dakshaarvind-fetch/RealEstate/internal/planner"
	"github.com/dakshaarvind-fetch/RealEstate/internal/ratelimit"
	"github.com/dakshaarvind-fetch/RealEstate/internal/session"
	"github.com/dakshaarvind-fetch/RealEstate/internal/sheets"
	"github.com/dakshaarvind-fetch/RealEstate/internal/workflow"
)

// buildEngine assembles the full search workflow from config. The
// exporter is returned separately because the auth command and the
// serve bridge talk to it directly.
func buildEngine() (*workflow.Engine, *sheets.GoogleExporter, *metrics.Collector, error) {
	p, err := planner.New(cfg)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init planner: %w", err)
	}

	intentModel, err := planner.NewModel(cfg, cfg.IntentModel)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init intent model: %w", err)
	}

	fetcher, err := listings.NewSiteFetcher(cfg.ListingsBaseURL, cfg.ListingsTimeout, logger)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("init listings fetcher: %w", err)
	}

	exporter := sheets.NewGoogleExporter(cfg, logger)
	cooldown := ratelimit.NewCooldown(cfg.SearchCooldown)
	sessions := session.NewLRUStore(cfg.SessionCapacity, cfg.SessionTTL)
	collector := metrics.NewCollector()

	executor := workflow.NewExecutor(fetcher, exporter, cooldown, collector, logger)
	engine := workflow.NewEngine(
		p,
		intent.NewParser(intentModel),
		executor,
		sessions,
		collector,
		logger,
		cfg.MaxPlannerTurns,
	)
	return engine, exporter, collector, nil
}
