package domain

import (
	"fmt"
	"time"
)

// OutcomeKind describes how a weather market's YES outcome is bounded.
type OutcomeKind string

const (
	OutcomeRange   OutcomeKind = "range"    // Lower <= high <= Upper
	OutcomeAtLeast OutcomeKind = "at_least" // high >= Lower
	OutcomeAtMost  OutcomeKind = "at_most"  // high <= Upper
)

// WeatherMarket is the structured reading of a daily-high temperature market.
type WeatherMarket struct {
	City  string // station code, e.g. NYC
	Date  time.Time
	Kind  OutcomeKind
	Lower float64
	Upper float64
}

// Key identifies the forecast the market needs: one per (city, date).
func (w WeatherMarket) Key() ForecastKey {
	return ForecastKey{City: w.City, Date: w.Date.Format("2006-01-02")}
}

// YesProbability evaluates the market's YES outcome against a distribution.
// Integer-degree ranges resolve on whole degrees, so "70-71" covers [70, 72).
func (w WeatherMarket) YesProbability(d Distribution) float64 {
	switch w.Kind {
	case OutcomeAtLeast:
		return d.ProbabilityAtLeast(w.Lower)
	case OutcomeAtMost:
		return d.ProbabilityBelow(w.Upper + 1)
	default:
		return d.ProbabilityBetween(w.Lower, w.Upper+1)
	}
}

// DaysUntil returns the whole days between now and the target date.
func (w WeatherMarket) DaysUntil(now time.Time) int {
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)
	target := time.Date(w.Date.Year(), w.Date.Month(), w.Date.Day(), 0, 0, 0, 0, time.UTC)
	return int(target.Sub(today).Hours() / 24)
}

// Describe renders the outcome, e.g. "NYC 2026-10-20 >=78°F".
func (w WeatherMarket) Describe() string {
	date := w.Date.Format("2006-01-02")
	switch w.Kind {
	case OutcomeAtLeast:
		return fmt.Sprintf("%s %s >=%.0f°F", w.City, date, w.Lower)
	case OutcomeAtMost:
		return fmt.Sprintf("%s %s <=%.0f°F", w.City, date, w.Upper)
	default:
		return fmt.Sprintf("%s %s %.0f-%.0f°F", w.City, date, w.Lower, w.Upper)
	}
}

// ForecastKey identifies a per-cycle forecast bundle.
type ForecastKey struct {
	City string
	Date string // YYYY-MM-DD
}

// ForecastBundle is everything the forecast source returns for one key.
type ForecastBundle struct {
	Key       ForecastKey
	SameDay   bool
	Sample    EnsembleSample
	Anchors   CalibrationAnchors
	FetchedAt time.Time
}

// WeatherSnapshot is the model output saved per (city, date) per cycle.
type WeatherSnapshot struct {
	Cycle        int64
	City         string
	Date         string
	EnsembleMean float64
	EnsembleStd  float64
	AnchorHigh   *float64
	Members      int
	CreatedAt    time.Time
}

// WeatherActual is a resolved daily high paired with what was predicted.
type WeatherActual struct {
	City         string
	Date         string
	ActualHigh   float64
	EnsembleMean *float64
	AnchorHigh   *float64
	Backfilled   bool
}
