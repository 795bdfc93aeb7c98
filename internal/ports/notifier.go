package ports

import (
	"context"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// Notifier presents cycle results to the operator.
type Notifier interface {
	// NotifyCycle shows the summary of a finished cycle.
	NotifyCycle(ctx context.Context, summary domain.CycleSummary) error

	// NotifyDeath shows the death report. It is the only user-visible
	// artifact of the fatal path.
	NotifyDeath(ctx context.Context, report domain.DeathReport) error
}

// Metrics records engine counters and gauges.
type Metrics interface {
	ObserveCycle(summary domain.CycleSummary)
	ObserveTrade(side domain.Side, sizeUSD float64)
	ObserveSkip(reason domain.SkipReason)
	ObserveExit(reason domain.ExitReason)
	ObserveAPICost(costUSD float64)
}
