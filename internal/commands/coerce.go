// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package commands

import (
	"encoding/json"
	"regexp"
	"strconv"
	"strings"
)

var numberPattern = regexp.MustCompile(`^-?\d+(\.\d+)?$`)

// Coerce converts a raw token into a typed value.
//
// Order matters: booleans, then numbers (float64), then JSON objects and
// arrays, then the string itself. Malformed JSON falls back to the string.
func Coerce(token string) any {
	switch strings.ToLower(token) {
	case "true":
		return true
	case "false":
		return false
	}

	if numberPattern.MatchString(token) {
		if n, err := strconv.ParseFloat(token, 64); err == nil {
			return n
		}
	}

	if looksLikeJSON(token) {
		var v any
		if err := json.Unmarshal([]byte(token), &v); err == nil {
			return v
		}
	}

	return token
}

func looksLikeJSON(token string) bool {
	return (strings.HasPrefix(token, "{") && strings.HasSuffix(token, "}")) ||
		(strings.HasPrefix(token, "[") && strings.HasSuffix(token, "]"))
}
