package webhook

import (
	"encoding/json"
	"fmt"
	"reflect"
	"strings"

	"github.com/go-viper/mapstructure/v2"
)

// Collected holds the typed data-collection fields the agents declare.
type Collected struct {
	// retention_check
	RetentionRisk     string   `mapstructure:"retention_risk"`
	SatisfactionLevel string   `mapstructure:"satisfaction_level"`
	Concerns          []string `mapstructure:"concerns"`

	// exit_interview
	PrimaryReason     string   `mapstructure:"primary_reason"`
	SatisfactionScore *float64 `mapstructure:"satisfaction_score"`
	Recommendations   []string `mapstructure:"recommendations"`
}

// Collected decodes data_collection_results into typed fields. Scalar strings
// are accepted for list fields, either as a JSON array or comma separated.
func (a Analysis) Collected() (Collected, error) {
	values := make(map[string]any, len(a.DataCollectionResults))
	for name, result := range a.DataCollectionResults {
		if result.Value != nil {
			values[name] = result.Value
		}
	}

	var out Collected
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.DecodeHookFuncType(stringToListHook),
		WeaklyTypedInput: true,
		Result:           &out,
	})
	if err != nil {
		return Collected{}, fmt.Errorf("failed to build decoder: %w", err)
	}
	if err := dec.Decode(values); err != nil {
		return Collected{}, fmt.Errorf("failed to decode data collection results: %w", err)
	}

	out.Concerns = cleanList(out.Concerns)
	out.Recommendations = cleanList(out.Recommendations)
	out.RetentionRisk = strings.ToLower(strings.TrimSpace(out.RetentionRisk))
	out.SatisfactionLevel = strings.ToLower(strings.TrimSpace(out.SatisfactionLevel))
	return out, nil
}

func stringToListHook(from reflect.Type, to reflect.Type, data any) (any, error) {
	if from.Kind() != reflect.String || to != reflect.TypeOf([]string(nil)) {
		return data, nil
	}

	s := strings.TrimSpace(data.(string))
	if s == "" {
		return []string{}, nil
	}
	if strings.HasPrefix(s, "[") {
		var list []string
		if err := json.Unmarshal([]byte(s), &list); err == nil {
			return list, nil
		}
	}
	return strings.FieldsFunc(s, func(r rune) bool { return r == ',' || r == ';' }), nil
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" {
			out = append(out, s)
		}
	}
	return out
}
