// internal/llmutil/parser.go
package llmutil

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	jsoniter "github.com/json-iterator/go"
)

// ErrUnparseable marks a model response that could not be decoded into the
// expected shape. Callers treat it the same as a rejection.
var ErrUnparseable = errors.New("unparseable model response")

// Validator is implemented by decoded payloads that carry their own
// structural checks (required fields, enum values, ranges).
type Validator interface {
	Validate() error
}

var (
	// Regex definitions use \x60 (hex representation) for backticks because Go raw strings cannot contain backticks.

	// fencedBlockRegex matches a response that is exactly one markdown code block.
	fencedBlockRegex = regexp.MustCompile("(?s)^\x60\x60\x60(?:json|JSON)?\\s*(.*?)\\s*\x60\x60\x60$")

	strictJSON = jsoniter.Config{
		EscapeHTML:             true,
		SortMapKeys:            true,
		ValidateJsonRawMessage: true,
		DisallowUnknownFields:  true,
	}.Froze()
)

// DecodeStrict parses a model response into T. The response must be a bare
// JSON value or a single fenced block containing one; conversational text
// around the payload, unknown fields or trailing data all fail. If *T
// implements Validator its checks run after decoding. Every failure wraps
// ErrUnparseable.
func DecodeStrict[T any](response string) (*T, error) {
	payload, err := extractPayload(response)
	if err != nil {
		return nil, err
	}

	var result T
	iter := jsoniter.ParseString(strictJSON, payload)
	iter.ReadVal(&result)
	if iter.Error != nil {
		return nil, fmt.Errorf("%w: %v. Extracted JSON (truncated): %s", ErrUnparseable, iter.Error, truncateString(payload, 500))
	}
	if next := iter.WhatIsNext(); next != jsoniter.InvalidValue {
		return nil, fmt.Errorf("%w: trailing data after JSON value", ErrUnparseable)
	}

	if v, ok := any(&result).(Validator); ok {
		if err := v.Validate(); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrUnparseable, err)
		}
	}
	return &result, nil
}

func extractPayload(response string) (string, error) {
	response = strings.TrimSpace(response)
	if response == "" {
		return "", fmt.Errorf("%w: empty response", ErrUnparseable)
	}

	if strings.HasPrefix(response, "```") {
		matches := fencedBlockRegex.FindStringSubmatch(response)
		if len(matches) < 2 || strings.Contains(matches[1], "```") {
			return "", fmt.Errorf("%w: expected a single fenced block", ErrUnparseable)
		}
		response = strings.TrimSpace(matches[1])
	}

	if !strings.HasPrefix(response, "{") && !strings.HasPrefix(response, "[") {
		return "", fmt.Errorf("%w: response is not a JSON object or array: %s", ErrUnparseable, truncateString(response, 120))
	}
	return response, nil
}

// truncateString truncates a string to a maximum length.
func truncateString(s string, maxLen int) string {
	if maxLen <= 0 {
		return ""
	}
	if len(s) <= maxLen {
		return s
	}
	// Simple truncation; does not account for rune boundaries but sufficient for error logging.
	return s[:maxLen] + "..."
}
