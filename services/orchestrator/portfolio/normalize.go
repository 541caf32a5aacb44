// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package portfolio extracts normalized holdings from uploaded
// spreadsheet and CSV files.
//
// The package has two halves: sheet.go turns raw bytes plus a file
// extension into ordered rows, and normalize.go collapses those rows
// into a canonical aggregated holdings list.
package portfolio

import (
	"math"
	"strconv"
	"strings"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
)

// =============================================================================
// Column Resolution
// =============================================================================

// Column alias candidates, checked in order. When no alias matches the
// header, the resolver falls back to a positional column index.
var (
	tickerAliases = []string{"ticker", "symbol"}
	qtyAliases    = []string{"qty", "quantity"}
)

// Positional fallbacks when no alias matches the header row.
const (
	tickerFallbackColIdx = 0
	qtyFallbackColIdx    = 1
)

// RawRow is one untyped row from a parsed sheet: the header columns in
// file order plus the cell values keyed by header name.
//
// Keeping Columns alongside Values preserves positional information
// that a bare map would lose; the positional fallback in lookup depends
// on it.
type RawRow struct {
	Columns []string
	Values  map[string]string
}

// lookup resolves a cell by the first matching alias, falling back to
// the column at fallbackIdx. Alias matching is case-insensitive on the
// trimmed header name.
func (r RawRow) lookup(aliases []string, fallbackIdx int) string {
	for _, alias := range aliases {
		for _, col := range r.Columns {
			if strings.EqualFold(strings.TrimSpace(col), alias) {
				return r.Values[col]
			}
		}
	}
	if fallbackIdx >= 0 && fallbackIdx < len(r.Columns) {
		return r.Values[r.Columns[fallbackIdx]]
	}
	return ""
}

// =============================================================================
// Normalization
// =============================================================================

// Normalize collapses parsed rows into a canonical holdings list.
//
// # Description
//
// For each row the ticker is resolved via the alias list ("ticker",
// "symbol") with the first column as positional fallback, trimmed and
// upper-cased; rows resolving to an empty ticker are dropped. The
// quantity is resolved via "qty"/"quantity" with the second column as
// fallback and coerced to a number; unparseable or non-finite values
// contribute zero rather than aborting the file. Quantities for
// repeated tickers are summed, never overwritten, and the output
// preserves first-seen ticker order.
//
// Normalize is idempotent: feeding its own output back through (as
// rows keyed ticker/qty) yields the same list.
//
// # Inputs
//
//   - rows: Ordered rows from a parsed sheet. May be empty.
//
// # Outputs
//
//   - []datatypes.Holding: At most one entry per ticker, first-seen order.
//     Empty (non-nil semantics not guaranteed) for empty input.
func Normalize(rows []RawRow) []datatypes.Holding {
	sums := make(map[string]float64, len(rows))
	order := make([]string, 0, len(rows))

	for _, row := range rows {
		ticker := strings.ToUpper(strings.TrimSpace(row.lookup(tickerAliases, tickerFallbackColIdx)))
		if ticker == "" {
			continue
		}
		if _, seen := sums[ticker]; !seen {
			order = append(order, ticker)
		}
		sums[ticker] += coerceQty(row.lookup(qtyAliases, qtyFallbackColIdx))
	}

	holdings := make([]datatypes.Holding, 0, len(order))
	for _, ticker := range order {
		holdings = append(holdings, datatypes.Holding{Ticker: ticker, Qty: sums[ticker]})
	}
	return holdings
}

// coerceQty converts a raw cell to a quantity, treating anything
// unparseable or non-finite as zero. Lenient by contract: bad quantity
// data must not abort the whole file.
func coerceQty(raw string) float64 {
	f, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}

// Tickers returns the ticker symbols of the holdings in order.
func Tickers(holdings []datatypes.Holding) []string {
	tickers := make([]string, 0, len(holdings))
	for _, h := range holdings {
		tickers = append(tickers, h.Ticker)
	}
	return tickers
}
