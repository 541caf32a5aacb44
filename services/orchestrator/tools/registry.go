// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package tools defines the tool registry the model may call during a
// streaming chat turn.
package tools

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/AleutianAI/folio/services/llm"
)

const (
	// callTimeout bounds one tool invocation so a slow provider cannot
	// eat the whole request deadline.
	callTimeout = 10 * time.Second

	// maxResultBytes caps the text fed back to the model per call.
	maxResultBytes = 8 * 1024
)

// Tool is one capability the model may invoke.
//
// Parameters returns a JSON Schema document describing the arguments.
// Call receives the model's raw argument JSON and returns a text result
// for the model to read; implementations must be safe for sequential
// reuse across requests.
type Tool interface {
	Name() string
	Description() string
	Parameters() json.RawMessage
	Call(ctx context.Context, args json.RawMessage) (string, error)
}

// Registry holds the fixed tool set for a deployment.
//
// Registration order is preserved so tool definitions reach the model
// deterministically.
type Registry struct {
	order []string
	tools map[string]Tool
}

// NewRegistry builds a registry over the given tools. Duplicate names
// are rejected; a typo'd duplicate would silently shadow a tool.
func NewRegistry(tools ...Tool) (*Registry, error) {
	r := &Registry{tools: make(map[string]Tool, len(tools))}
	for _, tool := range tools {
		if tool == nil {
			return nil, fmt.Errorf("nil tool in registry")
		}
		name := tool.Name()
		if _, exists := r.tools[name]; exists {
			return nil, fmt.Errorf("duplicate tool name %q", name)
		}
		r.tools[name] = tool
		r.order = append(r.order, name)
	}
	return r, nil
}

// Definitions returns provider-neutral definitions for every tool, in
// registration order.
func (r *Registry) Definitions() []llm.ToolDefinition {
	defs := make([]llm.ToolDefinition, 0, len(r.order))
	for _, name := range r.order {
		tool := r.tools[name]
		defs = append(defs, llm.ToolDefinition{
			Name:        tool.Name(),
			Description: tool.Description(),
			Parameters:  tool.Parameters(),
		})
	}
	return defs
}

// Len reports the number of registered tools.
func (r *Registry) Len() int {
	return len(r.order)
}

// Call dispatches one tool invocation by name.
//
// Each call runs under its own timeout and the result is truncated to
// maxResultBytes. An unknown tool name returns an error; the caller is
// expected to surface it to the model as a tool failure rather than
// abort the turn.
func (r *Registry) Call(ctx context.Context, name string, args json.RawMessage) (string, error) {
	tool, ok := r.tools[name]
	if !ok {
		return "", fmt.Errorf("unknown tool %q", name)
	}

	callCtx, cancel := context.WithTimeout(ctx, callTimeout)
	defer cancel()

	result, err := tool.Call(callCtx, args)
	if err != nil {
		return "", err
	}
	if len(result) > maxResultBytes {
		result = result[:maxResultBytes] + "\n[result truncated]"
	}
	return result, nil
}
