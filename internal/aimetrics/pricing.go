package aimetrics

import "strings"

// Price is dollars per 1K tokens.
type Price struct {
	Input  float64
	Output float64
}

// BlendedPrice is charged for models missing from the table.
var BlendedPrice = Price{Input: 0.001, Output: 0.002}

var pricing = map[string]Price{
	"gpt-4o":            {Input: 0.0025, Output: 0.010},
	"gpt-4o-mini":       {Input: 0.00015, Output: 0.0006},
	"gpt-4-turbo":       {Input: 0.01, Output: 0.03},
	"gpt-4":             {Input: 0.03, Output: 0.06},
	"gpt-3.5-turbo":     {Input: 0.0005, Output: 0.0015},
	"claude-3-5-sonnet": {Input: 0.003, Output: 0.015},
	"claude-3-opus":     {Input: 0.015, Output: 0.075},
	"claude-3-haiku":    {Input: 0.00025, Output: 0.00125},
	"gemini-1.5-pro":    {Input: 0.00125, Output: 0.005},
	"gemini-1.5-flash":  {Input: 0.000075, Output: 0.0003},
}

// PriceFor returns the price of the longest table entry that prefixes the
// model name, and whether one matched.
func PriceFor(model string) (Price, bool) {
	model = strings.ToLower(strings.TrimSpace(model))
	// "models/gemini-1.5-pro" is how the Gemini API names models
	model = strings.TrimPrefix(model, "models/")

	best := ""
	for prefix := range pricing {
		if strings.HasPrefix(model, prefix) && len(prefix) > len(best) {
			best = prefix
		}
	}
	if best == "" {
		return BlendedPrice, false
	}
	return pricing[best], true
}

// Cost prices a token count. When only a total is known it is charged at the
// mean of the input and output rate.
func Cost(model string, input, output, total int) float64 {
	price, _ := PriceFor(model)
	if input == 0 && output == 0 && total > 0 {
		return float64(total) / 1000 * (price.Input + price.Output) / 2
	}
	return float64(input)/1000*price.Input + float64(output)/1000*price.Output
}

// ProviderFor infers the vendor from a model name.
func ProviderFor(model string) string {
	m := strings.TrimPrefix(strings.ToLower(model), "models/")
	switch {
	case strings.HasPrefix(m, "gpt-"), strings.HasPrefix(m, "o1"), strings.HasPrefix(m, "o3"),
		strings.HasPrefix(m, "text-"), strings.HasPrefix(m, "davinci"):
		return "openai"
	case strings.HasPrefix(m, "claude"):
		return "anthropic"
	case strings.HasPrefix(m, "gemini"), strings.HasPrefix(m, "palm"):
		return "google"
	case strings.HasPrefix(m, "mistral"), strings.HasPrefix(m, "mixtral"):
		return "mistral"
	case strings.HasPrefix(m, "llama"):
		return "meta"
	}
	return ""
}
