// Copyright Amazon.com, Inc. or its affiliates. All Rights Reserved.
// SPDX-License-Identifier: Apache-2.0

package semantic

import (
	"bytes"
	"encoding/json"
	"fmt"

	"github.com/smo-cookie/detect-and-match2/internal/detector"
	"github.com/smo-cookie/detect-and-match2/internal/resilience"
)

// Default envelope keys
const (
	DefaultFindingsKey = "personal_info"
	DefaultExtraKey    = "extra_detections"

	// ExtraCategory files chat extra-term echoes that arrive as a flat list
	ExtraCategory = "EXTRA_TERMS"
)

// Envelope is a decoded detector reply
type Envelope struct {
	Findings   detector.Result
	ExtraTerms detector.Result
	Raw        json.RawMessage
}

// ParseEnvelope decodes a detection service reply. Findings live under
// findingsKey and optional extra-term echoes under extraKey, both as objects
// of string lists. A reply that is not an object, lacks the findings key,
// carries non-string values, or sets "error" is rejected. Rejections are
// retryable since model output varies between calls.
func ParseEnvelope(data []byte, findingsKey, extraKey string) (*Envelope, error) {
	return parseEnvelope(bytes.TrimSpace(data), findingsKey, extraKey, false)
}

// ParseChatEnvelope decodes the message content of a chat completion. Chat
// models drift from the requested shape, so the extra-term echo may also
// arrive as a single list, filed under ExtraCategory.
func ParseChatEnvelope(content []byte, findingsKey, extraKey string) (*Envelope, error) {
	return parseEnvelope(bytes.TrimSpace(content), findingsKey, extraKey, true)
}

func parseEnvelope(data []byte, findingsKey, extraKey string, flatExtra bool) (*Envelope, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, resilience.NewTransientError("malformed detector reply: not a JSON object", err)
	}

	if rawErr, ok := fields["error"]; ok && !isNull(rawErr) {
		var message string
		if err := json.Unmarshal(rawErr, &message); err != nil {
			message = string(rawErr)
		}
		if message != "" {
			return nil, resilience.NewTransientError(fmt.Sprintf("detector reported error: %s", message), nil)
		}
	}

	rawFindings, ok := fields[findingsKey]
	if !ok {
		return nil, resilience.NewTransientError(fmt.Sprintf("malformed detector reply: missing %q", findingsKey), nil)
	}

	findings, err := decodeCategories(rawFindings)
	if err != nil {
		return nil, resilience.NewTransientError(fmt.Sprintf("malformed detector reply: %q", findingsKey), err)
	}

	envelope := &Envelope{
		Findings:   findings,
		ExtraTerms: detector.Result{},
		Raw:        json.RawMessage(append([]byte(nil), data...)),
	}

	if rawExtra, ok := fields[extraKey]; ok && !isNull(rawExtra) {
		extra, err := decodeCategories(rawExtra)
		if err != nil {
			var list []string
			if !flatExtra || json.Unmarshal(rawExtra, &list) != nil {
				return nil, resilience.NewTransientError(fmt.Sprintf("malformed detector reply: %q", extraKey), err)
			}
			extra = detector.NewResult(hitsOf(ExtraCategory, list))
		}
		envelope.ExtraTerms = extra
	}

	return envelope, nil
}

func decodeCategories(raw json.RawMessage) (detector.Result, error) {
	if isNull(raw) {
		return detector.Result{}, nil
	}

	var categories map[string][]string
	if err := json.Unmarshal(raw, &categories); err != nil {
		return nil, err
	}
	return detector.Normalize(categories), nil
}

func hitsOf(category string, literals []string) []detector.Hit {
	hits := make([]detector.Hit, 0, len(literals))
	for _, literal := range literals {
		hits = append(hits, detector.Hit{Category: category, Literal: literal})
	}
	return hits
}

func isNull(raw json.RawMessage) bool {
	return len(bytes.TrimSpace(raw)) == 0 || string(bytes.TrimSpace(raw)) == "null"
}
