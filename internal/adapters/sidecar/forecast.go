package sidecar

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"time"

	"github.com/alejandrodnm/polyweather/internal/domain"
)

const (
	ensemblePath = "/weather/ensemble"
	actualPath   = "/weather/actual"
	dateLayout   = "2006-01-02"
)

// FetchEnsemble returns the raw ensemble draws and the anchors the sidecar
// has for a city's daily high. The NBM point beats the NWS one; the HRRR
// point is only used for same-day markets.
func (c *Client) FetchEnsemble(ctx context.Context, city string, date time.Time, sameDay bool) (domain.ForecastBundle, error) {
	q := url.Values{}
	q.Set("city", city)
	q.Set("date", date.Format(dateLayout))
	if sameDay {
		q.Set("same_day", "true")
	}

	var resp ensembleResponse
	if err := c.getJSON(ctx, ensemblePath, q, &resp); err != nil {
		return domain.ForecastBundle{}, fmt.Errorf("sidecar.FetchEnsemble %s %s: %w", city, date.Format(dateLayout), err)
	}

	bundle := domain.ForecastBundle{
		Key:       domain.ForecastKey{City: city, Date: date.Format(dateLayout)},
		SameDay:   sameDay,
		Sample:    domain.EnsembleSample{Models: resp.Models, Values: resp.Members},
		Anchors:   anchorsFrom(resp, sameDay),
		FetchedAt: time.Now().UTC(),
	}
	slog.Debug("ensemble fetched",
		"city", city,
		"date", bundle.Key.Date,
		"members", bundle.Sample.Count(),
		"anchor", bundle.Anchors.PointSource,
	)
	return bundle, nil
}

func anchorsFrom(resp ensembleResponse, sameDay bool) domain.CalibrationAnchors {
	var a domain.CalibrationAnchors
	switch {
	case resp.NBMMaxTemp != nil:
		a.Point, a.PointSource = resp.NBMMaxTemp, "nbm"
	case resp.NWSHigh != nil:
		a.Point, a.PointSource = resp.NWSHigh, "nws"
	}
	if resp.SpreadFactor != nil && *resp.SpreadFactor > 0 {
		a.Spread = resp.SpreadFactor
	}
	if sameDay && resp.HRRRMaxTemp != nil {
		a.SameDay = resp.HRRRMaxTemp
	}
	return a
}

// FetchObserved returns the observed daily high. A 404 or an empty high means
// the station has not published it yet and maps to domain.ErrNotFound.
func (c *Client) FetchObserved(ctx context.Context, city string, date time.Time) (float64, error) {
	q := url.Values{}
	q.Set("city", city)
	q.Set("date", date.Format(dateLayout))

	var resp actualResponse
	err := c.getJSON(ctx, actualPath, q, &resp)
	if statusCode(err) == http.StatusNotFound || (err == nil && resp.High == nil) {
		return 0, fmt.Errorf("sidecar.FetchObserved %s %s: %w", city, date.Format(dateLayout), domain.ErrNotFound)
	}
	if err != nil {
		return 0, fmt.Errorf("sidecar.FetchObserved %s %s: %w", city, date.Format(dateLayout), err)
	}
	return *resp.High, nil
}
