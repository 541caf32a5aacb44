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
	"testing"

	"github.com/sashabaranov/go-openai"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockModerationClient scripts the classifier's answer.
type mockModerationClient struct {
	flagged   bool
	err       error
	noResults bool
	lastInput string
	callCount int
}

func (m *mockModerationClient) Moderations(_ context.Context,
	req openai.ModerationRequest) (openai.ModerationResponse, error) {
	m.callCount++
	m.lastInput = fmt.Sprintf("%v", req.Input)
	if m.err != nil {
		return openai.ModerationResponse{}, m.err
	}
	if m.noResults {
		return openai.ModerationResponse{}, nil
	}
	return openai.ModerationResponse{
		Results: []openai.Result{{Flagged: m.flagged}},
	}, nil
}

// TestModerationService_Pass verifies clean text passes the gate.
func TestModerationService_Pass(t *testing.T) {
	mock := &mockModerationClient{flagged: false}
	service, err := NewModerationService(mock)
	require.NoError(t, err)

	verdict, err := service.Check(context.Background(), "what about risk?")

	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
	assert.Equal(t, 1, mock.callCount)
}

// TestModerationService_Flagged verifies flagged text carries the
// denial message.
func TestModerationService_Flagged(t *testing.T) {
	mock := &mockModerationClient{flagged: true}
	service, err := NewModerationService(mock)
	require.NoError(t, err)

	verdict, err := service.Check(context.Background(), "something vile")

	require.NoError(t, err)
	assert.True(t, verdict.Flagged)
	assert.Equal(t, DefaultDenialMessage, verdict.DenialMessage)
}

// TestModerationService_EmptyTextSkipsClassifier verifies empty text
// passes without a network call.
func TestModerationService_EmptyTextSkipsClassifier(t *testing.T) {
	mock := &mockModerationClient{}
	service, err := NewModerationService(mock)
	require.NoError(t, err)

	verdict, err := service.Check(context.Background(), "")

	require.NoError(t, err)
	assert.False(t, verdict.Flagged)
	assert.Equal(t, 0, mock.callCount)
}

// TestModerationService_ClassifierErrorFailsClosed verifies a classifier
// failure propagates instead of silently passing the gate.
func TestModerationService_ClassifierErrorFailsClosed(t *testing.T) {
	mock := &mockModerationClient{err: fmt.Errorf("connection refused")}
	service, err := NewModerationService(mock)
	require.NoError(t, err)

	_, err = service.Check(context.Background(), "hello")

	require.Error(t, err)
	assert.Contains(t, err.Error(), "moderation classifier")
}

// TestModerationService_NoResultsFailsClosed verifies an empty result
// set is treated as a classifier failure, not a pass.
func TestModerationService_NoResultsFailsClosed(t *testing.T) {
	mock := &mockModerationClient{noResults: true}
	service, err := NewModerationService(mock)
	require.NoError(t, err)

	_, err = service.Check(context.Background(), "hello")

	require.Error(t, err)
}

// TestNewModerationService_NilClient verifies the constructor rejects
// a missing client.
func TestNewModerationService_NilClient(t *testing.T) {
	_, err := NewModerationService(nil)
	require.Error(t, err)
}
