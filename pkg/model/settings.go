package model

// DefaultModel is used when no model has been selected yet.
const DefaultModel = "gemini-2.0-flash"

// KnownModels are the selectable generation models.
var KnownModels = []string{
	"gemini-2.0-flash",
	"gemini-2.0-flash-thinking-exp-01-21",
	"gemini-2.0-pro-exp-02-05",
	"gemini-exp-1206",
	"gemini-2.5-pro-exp-03-25",
}

// Settings is the durable process configuration. A missing key implies the
// zero value here; defaults are applied by the consumer.
type Settings struct {
	APIKey string
	Model  string
}

// IsKnownModel reports whether name is in the selectable model list.
func IsKnownModel(name string) bool {
	for _, m := range KnownModels {
		if m == name {
			return true
		}
	}
	return false
}
