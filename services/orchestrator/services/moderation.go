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
	"fmt"

	"github.com/sashabaranov/go-openai"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
)

// moderationTracer is the OpenTelemetry tracer for ModerationService operations.
var moderationTracer = otel.Tracer("folio.orchestrator.services.moderation")

// DefaultDenialMessage is streamed in place of a model answer when the
// classifier flags the latest user turn.
const DefaultDenialMessage = "Your message violates our guidelines. I can't answer that."

// ModerationClient is the slice of the provider API the gate needs.
// *openai.Client satisfies it.
type ModerationClient interface {
	Moderations(ctx context.Context, request openai.ModerationRequest) (openai.ModerationResponse, error)
}

// ModerationVerdict is the gate's decision for one user turn.
type ModerationVerdict struct {
	Flagged       bool
	DenialMessage string
}

// ModerationService classifies user text before it reaches the model.
//
// # Description
//
// ModerationService wraps the external content classifier. The gate is
// deliberately fail-closed: a classifier error propagates to the caller
// and fails the request rather than silently letting the text through,
// because failing open would defeat the safety purpose.
type ModerationService struct {
	client ModerationClient
}

// NewModerationService creates a moderation gate over the given client.
//
// # Inputs
//
//   - client: Provider client. Must not be nil.
//
// # Outputs
//
//   - *ModerationService: The gate.
//   - error: Non-nil when client is nil.
func NewModerationService(client ModerationClient) (*ModerationService, error) {
	if client == nil {
		return nil, fmt.Errorf("moderation client must not be nil")
	}
	return &ModerationService{client: client}, nil
}

// Check classifies the given text.
//
// # Description
//
// Issues one synchronous classifier call, no retry. Empty text passes
// without a network call (there is nothing to classify). A flagged
// verdict carries the denial message callers should stream in place of
// an answer.
//
// # Inputs
//
//   - ctx: Context for cancellation and timeout.
//   - text: Concatenated text of the latest user turn. May be empty.
//
// # Outputs
//
//   - ModerationVerdict: Flagged plus the denial message when flagged.
//   - error: Non-nil when the classifier is unreachable or errored.
//     Callers must treat this as fatal for the request.
func (s *ModerationService) Check(ctx context.Context, text string) (ModerationVerdict, error) {
	ctx, span := moderationTracer.Start(ctx, "ModerationService.Check")
	defer span.End()
	span.SetAttributes(attribute.Int("moderation.text_bytes", len(text)))

	if text == "" {
		return ModerationVerdict{}, nil
	}

	resp, err := s.client.Moderations(ctx, openai.ModerationRequest{
		Input: text,
		Model: openai.ModerationOmniLatest,
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "classifier call failed")
		return ModerationVerdict{}, fmt.Errorf("moderation classifier call failed: %w", err)
	}
	if len(resp.Results) == 0 {
		span.SetStatus(codes.Error, "classifier returned no results")
		return ModerationVerdict{}, fmt.Errorf("moderation classifier returned no results")
	}

	flagged := resp.Results[0].Flagged
	span.SetAttributes(attribute.Bool("moderation.flagged", flagged))
	if !flagged {
		return ModerationVerdict{}, nil
	}
	return ModerationVerdict{
		Flagged:       true,
		DenialMessage: DefaultDenialMessage,
	}, nil
}
