// Package jsonx provides JSON extraction utilities for parsing LLM responses.
//
// LLMs often return JSON wrapped in markdown fences or embedded in running
// commentary. This package isolates the JSON portion so callers can decode it.
package jsonx

import "strings"

// StripFences removes enclosing markdown code fences from a response.
// Handles patterns like ```json\n...\n``` or ```\n...\n```
func StripFences(response string) string {
	trimmed := strings.TrimSpace(response)

	if strings.HasPrefix(trimmed, "```") {
		trimmed = strings.TrimPrefix(trimmed, "```")
		// Drop an optional language tag on the fence line.
		if idx := strings.IndexByte(trimmed, '\n'); idx != -1 {
			firstLine := strings.TrimSpace(trimmed[:idx])
			if firstLine != "" && !strings.ContainsAny(firstLine, "{}[]\" ") {
				trimmed = trimmed[idx+1:]
			}
		}
		trimmed = strings.TrimSpace(trimmed)
	}

	if strings.HasSuffix(trimmed, "```") {
		trimmed = strings.TrimSuffix(trimmed, "```")
		trimmed = strings.TrimSpace(trimmed)
	}

	return trimmed
}
