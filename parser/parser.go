// Package parser classifies raw model replies into a closed set of variants.
//
// Models frequently wrap otherwise-valid structured output in commentary or
// code fences. Parsing is tiered: a strict structural pass first, then a
// permissive pattern pass, and finally a continuation default that re-prompts
// rather than failing. No tier ever returns an error; ambiguity resolves to
// Continuation.
//
// Information Hiding:
// - Tier ordering and the fallback patterns are internal
// - Callers see only the Kind and the extracted fields
package parser

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"

	"github.com/okoro/datalyst/internal/jsonx"
)

// Kind identifies which variant a reply was classified as.
type Kind int

const (
	// KindContinuation means the reply carried neither a final answer nor
	// code; the conversation should continue with a follow-up prompt.
	KindContinuation Kind = iota
	// KindFinalAnswer means the reply declared a final answer.
	KindFinalAnswer
	// KindCode means the reply carried one or more code blocks to execute.
	KindCode
)

func (k Kind) String() string {
	switch k {
	case KindFinalAnswer:
		return "final_answer"
	case KindCode:
		return "code"
	default:
		return "continuation"
	}
}

// ParsedResponse is the result of classifying a raw model reply.
type ParsedResponse struct {
	Kind Kind

	// Content is the stringified payload: the final answer for
	// KindFinalAnswer, the raw text otherwise.
	Content string

	// Value preserves the original final-answer value before
	// stringification, so numeric or structured answers survive intact.
	Value any

	// CodeBlocks holds the ordered code fragments for KindCode.
	CodeBlocks []string

	// Analysis is the model's optional commentary accompanying code.
	Analysis string

	// Raw is the unmodified input text.
	Raw string

	// RequiresFollowup reports whether the loop must re-prompt.
	RequiresFollowup bool
}

var (
	finalAnswerPattern = regexp.MustCompile(`\{[^}]*"final answer"\s*:\s*"([^"]+)"[^}]*\}`)
	codePattern        = regexp.MustCompile(`(?s)\{[^}]*"code"\s*:\s*"(.+?)"\s*(?:,[^}]*)?\}`)
	analysisPattern    = regexp.MustCompile(`"analysis"\s*:\s*"([^"]+)"`)
)

// Parse classifies a raw model reply. It never fails: anything that cannot be
// recognized as a final answer or code becomes a Continuation.
func Parse(raw string) ParsedResponse {
	if strings.TrimSpace(raw) == "" {
		return ParsedResponse{
			Kind:             KindContinuation,
			Raw:              raw,
			RequiresFollowup: true,
		}
	}

	if parsed, ok := parseStrict(raw); ok {
		return parsed
	}
	if parsed, ok := parseFallback(raw); ok {
		return parsed
	}

	return ParsedResponse{
		Kind:             KindContinuation,
		Content:          raw,
		Raw:              raw,
		RequiresFollowup: true,
	}
}

// parseStrict strips enclosing fences and decodes the remainder as a JSON
// object with either a "final answer" or a "code" key.
func parseStrict(raw string) (ParsedResponse, bool) {
	stripped := jsonx.StripFences(raw)

	var obj map[string]any
	if err := json.Unmarshal([]byte(stripped), &obj); err != nil {
		return ParsedResponse{}, false
	}

	if answer, ok := obj["final answer"]; ok {
		return ParsedResponse{
			Kind:    KindFinalAnswer,
			Content: stringify(answer),
			Value:   answer,
			Raw:     raw,
		}, true
	}

	if code, ok := obj["code"]; ok {
		// A code reply with nothing to run is treated as a continuation,
		// keeping KindCode synonymous with a non-empty block list.
		blocks := normalizeCode(code)
		if len(blocks) == 0 {
			return ParsedResponse{}, false
		}
		analysis, _ := obj["analysis"].(string)
		return ParsedResponse{
			Kind:       KindCode,
			CodeBlocks: blocks,
			Analysis:   analysis,
			Raw:        raw,
		}, true
	}

	return ParsedResponse{}, false
}

// parseFallback scans the raw text for an embedded object-like fragment when
// strict decoding failed, typically due to malformed quoting.
func parseFallback(raw string) (ParsedResponse, bool) {
	if m := finalAnswerPattern.FindStringSubmatch(raw); m != nil {
		return ParsedResponse{
			Kind:    KindFinalAnswer,
			Content: m[1],
			Value:   m[1],
			Raw:     raw,
		}, true
	}

	if m := codePattern.FindStringSubmatch(raw); m != nil {
		var analysis string
		if a := analysisPattern.FindStringSubmatch(raw); a != nil {
			analysis = a[1]
		}
		return ParsedResponse{
			Kind:       KindCode,
			CodeBlocks: []string{m[1]},
			Analysis:   analysis,
			Raw:        raw,
		}, true
	}

	return ParsedResponse{}, false
}

// normalizeCode coerces the "code" value into an ordered list of strings:
// a single string becomes a one-element list, a list becomes its elements
// coerced to strings, any other scalar becomes its string form.
func normalizeCode(code any) []string {
	switch v := code.(type) {
	case string:
		return []string{v}
	case []any:
		blocks := make([]string, 0, len(v))
		for _, item := range v {
			blocks = append(blocks, stringify(item))
		}
		return blocks
	default:
		return []string{stringify(code)}
	}
}

// stringify renders an arbitrary decoded JSON value as plain text. Strings
// pass through unquoted; everything else re-serializes to JSON.
func stringify(v any) string {
	if s, ok := v.(string); ok {
		return s
	}
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Sprintf("%v", v)
	}
	return string(data)
}
