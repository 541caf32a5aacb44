// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package portfolio

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/AleutianAI/folio/services/orchestrator/datatypes"
)

// rowOf builds a RawRow from ordered column/value pairs.
func rowOf(pairs ...string) RawRow {
	row := RawRow{Values: make(map[string]string, len(pairs)/2)}
	for i := 0; i+1 < len(pairs); i += 2 {
		row.Columns = append(row.Columns, pairs[i])
		row.Values[pairs[i]] = pairs[i+1]
	}
	return row
}

// TestNormalize_AliasesAndAggregation verifies that ticker and quantity
// columns resolve through their alias lists, case is normalized, repeat
// tickers are summed, and unparseable quantities contribute zero.
func TestNormalize_AliasesAndAggregation(t *testing.T) {
	rows := []RawRow{
		rowOf("ticker", "aapl", "qty", "3"),
		rowOf("symbol", "AAPL", "quantity", "2"),
		rowOf("ticker", "msft", "qty", "x"),
	}

	holdings := Normalize(rows)

	require.Len(t, holdings, 2)
	assert.Equal(t, datatypes.Holding{Ticker: "AAPL", Qty: 5}, holdings[0])
	assert.Equal(t, datatypes.Holding{Ticker: "MSFT", Qty: 0}, holdings[1])
}

// TestNormalize_PositionalFallback verifies that rows whose headers
// match no alias resolve ticker and quantity by column position.
func TestNormalize_PositionalFallback(t *testing.T) {
	rows := []RawRow{
		rowOf("name", "nvda", "shares", "10"),
		rowOf("name", "nvda", "shares", "2.5"),
	}

	holdings := Normalize(rows)

	require.Len(t, holdings, 1)
	assert.Equal(t, "NVDA", holdings[0].Ticker)
	assert.InDelta(t, 12.5, holdings[0].Qty, 1e-9)
}

// TestNormalize_DropsEmptyTickers verifies that rows resolving to an
// empty or whitespace-only ticker are dropped without error.
func TestNormalize_DropsEmptyTickers(t *testing.T) {
	rows := []RawRow{
		rowOf("ticker", "  ", "qty", "4"),
		rowOf("ticker", "", "qty", "1"),
		rowOf("ticker", "voo", "qty", "1"),
	}

	holdings := Normalize(rows)

	require.Len(t, holdings, 1)
	assert.Equal(t, "VOO", holdings[0].Ticker)
}

// TestNormalize_FirstSeenOrder verifies the output preserves the order
// in which tickers first appeared, independent of later repeats.
func TestNormalize_FirstSeenOrder(t *testing.T) {
	rows := []RawRow{
		rowOf("ticker", "msft", "qty", "1"),
		rowOf("ticker", "aapl", "qty", "1"),
		rowOf("ticker", "msft", "qty", "1"),
	}

	holdings := Normalize(rows)

	require.Len(t, holdings, 2)
	assert.Equal(t, "MSFT", holdings[0].Ticker)
	assert.Equal(t, "AAPL", holdings[1].Ticker)
}

// TestNormalize_Idempotent verifies that feeding canonical output back
// through the normalizer yields the same list.
func TestNormalize_Idempotent(t *testing.T) {
	first := Normalize([]RawRow{
		rowOf("ticker", "aapl", "qty", "3"),
		rowOf("symbol", "AAPL", "quantity", "2"),
		rowOf("ticker", "msft", "qty", "x"),
	})

	asRows := make([]RawRow, 0, len(first))
	for _, h := range first {
		asRows = append(asRows, rowOf("ticker", h.Ticker, "qty",
			strconv.FormatFloat(h.Qty, 'f', -1, 64)))
	}

	second := Normalize(asRows)
	assert.Equal(t, first, second)
}

// TestNormalize_EmptyInput verifies that no rows produce an empty
// holdings list rather than an error or nil panic downstream.
func TestNormalize_EmptyInput(t *testing.T) {
	holdings := Normalize(nil)
	assert.Empty(t, holdings)
}

// TestNormalize_NonFiniteQuantities verifies NaN and infinity renderings
// coerce to zero under the lenient-ingestion policy.
func TestNormalize_NonFiniteQuantities(t *testing.T) {
	rows := []RawRow{
		rowOf("ticker", "spy", "qty", "NaN"),
		rowOf("ticker", "spy", "qty", "+Inf"),
		rowOf("ticker", "spy", "qty", "7"),
	}

	holdings := Normalize(rows)

	require.Len(t, holdings, 1)
	assert.Equal(t, 7.0, holdings[0].Qty)
}

// TestTickers verifies ticker extraction preserves holding order.
func TestTickers(t *testing.T) {
	tickers := Tickers([]datatypes.Holding{
		{Ticker: "AAPL", Qty: 5},
		{Ticker: "MSFT", Qty: 0},
	})
	assert.Equal(t, []string{"AAPL", "MSFT"}, tickers)
}
