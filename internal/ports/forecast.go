package ports

import (
	"context"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

// ForecastSource supplies ensembles, anchors and observed highs.
type ForecastSource interface {
	// FetchEnsemble returns the raw draws and anchors for a city's daily high.
	FetchEnsemble(ctx context.Context, city string, date time.Time, sameDay bool) (domain.ForecastBundle, error)

	// FetchObserved returns the resolved daily high, domain.ErrNotFound when
	// it is not published yet.
	FetchObserved(ctx context.Context, city string, date time.Time) (float64, error)
}

// Analyst is the language-model collaborator. The returned judgment carries
// CostUSD even when err is non-nil, so billed failures can be booked.
type Analyst interface {
	Analyze(ctx context.Context, facts domain.Facts) (domain.Judgment, error)
}
