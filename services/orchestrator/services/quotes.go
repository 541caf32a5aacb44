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
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/time/rate"
)

// quoteTracer is the OpenTelemetry tracer for QuoteClient operations.
var quoteTracer = otel.Tracer("folio.orchestrator.services.quotes")

// defaultQuoteBaseURL is the AlphaVantage query endpoint.
const defaultQuoteBaseURL = "https://www.alphavantage.co/query"

// QuoteGateInterval spaces consecutive quote lookups. The provider
// enforces a per-minute rate limit; concurrent fan-out would violate it,
// so lookups are serialized behind this gate.
const QuoteGateInterval = 1200 * time.Millisecond

// NewQuoteGate builds the shared rate gate for quote lookups. The gate
// is an explicit owned resource: main constructs one and hands it to
// the client, rather than the client keeping ambient package state.
func NewQuoteGate() *rate.Limiter {
	return rate.NewLimiter(rate.Every(QuoteGateInterval), 1)
}

// QuoteClient fetches current prices from AlphaVantage.
type QuoteClient struct {
	httpClient *http.Client
	baseURL    string
	apiKey     string
	gate       *rate.Limiter
}

// NewQuoteClient creates a quote client.
//
// # Inputs
//
//   - apiKey: Provider credential. Empty is allowed; Configured reports
//     false and callers skip price enrichment entirely.
//   - gate: Rate gate shared by all lookups. Must not be nil.
//
// # Outputs
//
//   - *QuoteClient: The client.
//   - error: Non-nil when gate is nil.
func NewQuoteClient(apiKey string, gate *rate.Limiter) (*QuoteClient, error) {
	if gate == nil {
		return nil, fmt.Errorf("quote rate gate must not be nil")
	}
	return &QuoteClient{
		httpClient: &http.Client{Timeout: 10 * time.Second},
		baseURL:    defaultQuoteBaseURL,
		apiKey:     apiKey,
		gate:       gate,
	}, nil
}

// WithBaseURL points the client at a different endpoint. Used by tests.
func (c *QuoteClient) WithBaseURL(baseURL string) *QuoteClient {
	c.baseURL = baseURL
	return c
}

// Configured reports whether a provider credential is present.
func (c *QuoteClient) Configured() bool {
	return c.apiKey != ""
}

// Latest returns the current price for a symbol, or nil when the
// provider has no quote for it.
//
// # Description
//
// Waits on the shared rate gate before issuing the call, so back-to-back
// lookups are spaced by QuoteGateInterval. The response is the provider's
// GLOBAL_QUOTE document; the price lives under "Global Quote"."05. price".
// A present but unparsable price is treated as no quote.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout. A context ending while
//     waiting on the gate surfaces as an error.
//   - symbol: Ticker symbol, already upper-cased by the normalizer.
//
// # Outputs
//
//   - *float64: The price, or nil when the provider returned no quote.
//   - error: Non-nil on transport or provider failure.
func (c *QuoteClient) Latest(ctx context.Context, symbol string) (*float64, error) {
	ctx, span := quoteTracer.Start(ctx, "QuoteClient.Latest")
	defer span.End()
	span.SetAttributes(attribute.String("quote.symbol", symbol))

	if err := c.gate.Wait(ctx); err != nil {
		return nil, fmt.Errorf("quote rate gate wait interrupted: %w", err)
	}

	params := url.Values{}
	params.Set("function", "GLOBAL_QUOTE")
	params.Set("symbol", symbol)
	params.Set("apikey", c.apiKey)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet,
		c.baseURL+"?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to build the quote request: %w", err)
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "quote request failed")
		return nil, fmt.Errorf("quote request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return nil, fmt.Errorf("failed to read the quote response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		span.SetStatus(codes.Error, "non-200 from quote provider")
		return nil, fmt.Errorf("quote provider returned status %d", resp.StatusCode)
	}

	var envelope struct {
		GlobalQuote map[string]string `json:"Global Quote"`
	}
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, fmt.Errorf("failed to parse the quote response: %w", err)
	}

	raw, ok := envelope.GlobalQuote["05. price"]
	if !ok || raw == "" {
		return nil, nil
	}
	price, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return nil, nil
	}
	span.SetAttributes(attribute.Float64("quote.price", price))
	return &price, nil
}
