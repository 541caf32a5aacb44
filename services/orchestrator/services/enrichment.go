// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package services

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"
)

// enrichmentTracer is the OpenTelemetry tracer for EnrichmentService operations.
var enrichmentTracer = otel.Tracer("folio.orchestrator.services.enrichment")

// Enrichment caps. Web and price fan-outs are bounded so a large
// portfolio cannot turn one chat request into dozens of provider calls.
const (
	maxWebTickers   = 6
	maxWebHits      = 3
	maxPriceTickers = 5
)

// EnrichmentResult carries the optional context messages produced for a
// holdings list, ready to append as synthetic user turns. Empty strings
// mean "no message" downstream; empty results must not pollute the
// conversation with no-data noise.
type EnrichmentResult struct {
	WebContext   string
	PriceContext string
}

// EnrichmentService gathers best-effort external context for extracted
// holdings.
//
// # Description
//
// The service runs two sub-fetchers, web search and quote lookup. Both
// are best-effort by contract: a per-ticker failure is logged and
// skipped, a provider-wide failure degrades to an empty block, and
// nothing here ever fails the caller's request. The two sub-fetchers
// run concurrently with each other; within each one the per-ticker
// calls are strictly serial (the quote provider's rate gate makes
// concurrency pointless, and the web provider gets the same treatment
// for symmetry of failure isolation).
type EnrichmentService struct {
	search *WebSearchClient
	quotes *QuoteClient
}

// NewEnrichmentService creates an enrichment fetcher. Either client may
// be nil, which disables that sub-fetcher.
func NewEnrichmentService(search *WebSearchClient, quotes *QuoteClient) *EnrichmentService {
	return &EnrichmentService{search: search, quotes: quotes}
}

// Fetch gathers web and price context for the given tickers.
//
// # Description
//
// Queries web search for at most the first 6 tickers (top 3 hits each)
// and quotes for at most the first 5. The quote sub-fetcher is skipped
// entirely when no provider credential is configured; a failed lookup
// contributes a null price rather than aborting the rest.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - tickers: Deduplicated, upper-cased ticker list in first-seen order.
//
// # Outputs
//
//   - EnrichmentResult: Context blocks; either or both may be empty.
//     Never an error: enrichment failures degrade to omission.
func (s *EnrichmentService) Fetch(ctx context.Context, tickers []string) EnrichmentResult {
	ctx, span := enrichmentTracer.Start(ctx, "EnrichmentService.Fetch")
	defer span.End()
	span.SetAttributes(attribute.Int("enrichment.tickers", len(tickers)))

	var result EnrichmentResult
	if len(tickers) == 0 {
		return result
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		result.WebContext = s.fetchWebContext(gctx, tickers)
		return nil
	})
	g.Go(func() error {
		result.PriceContext = s.fetchPriceContext(gctx, tickers)
		return nil
	})
	// Sub-fetchers never return errors; Wait only joins them.
	_ = g.Wait()

	span.SetAttributes(
		attribute.Bool("enrichment.web_context", result.WebContext != ""),
		attribute.Bool("enrichment.price_context", result.PriceContext != ""),
	)
	return result
}

// fetchWebContext builds the news block for at most maxWebTickers
// tickers. Per-ticker failures are logged and skipped.
func (s *EnrichmentService) fetchWebContext(ctx context.Context, tickers []string) string {
	if s.search == nil {
		return ""
	}
	if len(tickers) > maxWebTickers {
		tickers = tickers[:maxWebTickers]
	}

	var blocks []string
	for _, ticker := range tickers {
		hits, err := s.search.Search(ctx, ticker+" stock news", maxWebHits)
		if err != nil {
			slog.Warn("web context lookup failed, skipping ticker",
				"ticker", ticker, "error", err)
			continue
		}
		if len(hits) == 0 {
			continue
		}
		var b strings.Builder
		b.WriteString(ticker + ":")
		for _, hit := range hits {
			b.WriteString("\n- " + hit.Title)
			if hit.Snippet != "" {
				b.WriteString(": " + hit.Snippet)
			}
			if hit.URL != "" {
				b.WriteString(" (" + hit.URL + ")")
			}
		}
		blocks = append(blocks, b.String())
	}

	if len(blocks) == 0 {
		return ""
	}
	return "Current web context for holdings:\n" + strings.Join(blocks, "\n\n")
}

// fetchPriceContext builds the price block for at most maxPriceTickers
// tickers. Skipped entirely without a provider credential; failed
// lookups contribute null.
func (s *EnrichmentService) fetchPriceContext(ctx context.Context, tickers []string) string {
	if s.quotes == nil || !s.quotes.Configured() {
		return ""
	}
	if len(tickers) > maxPriceTickers {
		tickers = tickers[:maxPriceTickers]
	}

	prices := make(map[string]*float64, len(tickers))
	for _, ticker := range tickers {
		price, err := s.quotes.Latest(ctx, ticker)
		if err != nil {
			slog.Warn("price lookup failed, recording null",
				"ticker", ticker, "error", err)
			prices[ticker] = nil
			continue
		}
		prices[ticker] = price
	}

	encoded, err := json.Marshal(prices)
	if err != nil {
		slog.Error("failed to encode the price map", "error", err)
		return ""
	}
	return fmt.Sprintf("Latest prices (AlphaVantage): %s", encoded)
}
