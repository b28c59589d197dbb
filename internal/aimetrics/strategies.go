package aimetrics

import (
	"encoding/json"
	"strconv"
	"strings"
)

// usage is one normalized token count found in an output item.
type usage struct {
	input  int
	output int
	total  int
	family string
}

// strategy recognizes one token usage shape. extract reports false when the
// shape is absent.
type strategy struct {
	name    string
	extract func(item map[string]interface{}) (usage, bool)
}

// strategies are tried in order; the first match wins for an item.
var strategies = []strategy{
	{name: "openai_usage", extract: openAIUsage},
	{name: "langchain_token_usage", extract: langchainTokenUsage},
	{name: "anthropic_usage", extract: anthropicUsage},
	{name: "gemini_usage_metadata", extract: geminiUsageMetadata},
}

// usage.{prompt_tokens, completion_tokens, total_tokens}
func openAIUsage(item map[string]interface{}) (usage, bool) {
	u := nestedMap(item, "usage")
	if u == nil {
		return usage{}, false
	}
	in, okIn := intField(u, "prompt_tokens")
	out, okOut := intField(u, "completion_tokens")
	total, okTotal := intField(u, "total_tokens")
	if !okIn && !okOut && !okTotal {
		return usage{}, false
	}
	return normalize(in, out, total, "openai"), true
}

// response.tokenUsage or top-level tokenUsage, as emitted by LangChain nodes.
func langchainTokenUsage(item map[string]interface{}) (usage, bool) {
	u := nestedMap(item, "response", "tokenUsage")
	if u == nil {
		u = nestedMap(item, "tokenUsage")
	}
	if u == nil {
		return usage{}, false
	}
	in, okIn := intField(u, "promptTokens")
	out, okOut := intField(u, "completionTokens")
	total, okTotal := intField(u, "totalTokens")
	if !okIn && !okOut && !okTotal {
		return usage{}, false
	}
	return normalize(in, out, total, ""), true
}

// response.usage or top-level usage with {input_tokens, output_tokens}.
func anthropicUsage(item map[string]interface{}) (usage, bool) {
	for _, path := range [][]string{{"response", "usage"}, {"usage"}} {
		u := nestedMap(item, path...)
		if u == nil {
			continue
		}
		in, okIn := intField(u, "input_tokens")
		out, okOut := intField(u, "output_tokens")
		if okIn || okOut {
			return normalize(in, out, 0, "anthropic"), true
		}
	}
	return usage{}, false
}

// usageMetadata.{promptTokenCount, candidatesTokenCount, totalTokenCount}
func geminiUsageMetadata(item map[string]interface{}) (usage, bool) {
	u := nestedMap(item, "usageMetadata")
	if u == nil {
		return usage{}, false
	}
	in, okIn := intField(u, "promptTokenCount")
	out, okOut := intField(u, "candidatesTokenCount")
	total, okTotal := intField(u, "totalTokenCount")
	if !okIn && !okOut && !okTotal {
		return usage{}, false
	}
	return normalize(in, out, total, "google"), true
}

func normalize(in, out, total int, family string) usage {
	if total < in+out {
		total = in + out
	}
	return usage{input: in, output: out, total: total, family: family}
}

var modelKeys = [][]string{
	{"model"},
	{"modelName"},
	{"modelVersion"},
	{"response", "model"},
}

func modelName(item map[string]interface{}) string {
	for _, path := range modelKeys {
		parent := item
		if len(path) > 1 {
			parent = nestedMap(item, path[:len(path)-1]...)
		}
		if parent == nil {
			continue
		}
		if s, ok := parent[path[len(path)-1]].(string); ok && strings.TrimSpace(s) != "" {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

func nestedMap(m map[string]interface{}, path ...string) map[string]interface{} {
	current := m
	for _, key := range path {
		next, ok := current[key].(map[string]interface{})
		if !ok {
			return nil
		}
		current = next
	}
	return current
}

// intField reads a non-negative count. Payloads carry numbers as float64
// after decoding, but strings and json.Number show up too.
func intField(m map[string]interface{}, key string) (int, bool) {
	var f float64
	switch v := m[key].(type) {
	case float64:
		f = v
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		parsed, err := v.Float64()
		if err != nil {
			return 0, false
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, false
		}
		f = parsed
	default:
		return 0, false
	}
	if f < 0 {
		return 0, false
	}
	return int(f), true
}
