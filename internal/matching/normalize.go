package matching

import (
	"encoding/json"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/spigell/hh-checkpoint/internal/dedup"
)

const (
	MinScore = 0
	MaxScore = 10
)

const (
	reasonMissing  = "missing, defaulted to 0"
	reasonNotInt   = "not an integer, rounded"
	reasonRange    = "out of range, clamped"
	reasonNotValid = "not a number, defaulted to 0"
	reasonMean     = "missing, derived from dimensions mean"
)

// coerce turns a decoded JSON value into a score. ok is false when v
// carries no usable number at all.
func coerce(v any) (value float64, ok bool) {
	switch val := v.(type) {
	case float64:
		value = val
	case float32:
		value = float64(val)
	case int:
		value = float64(val)
	case int64:
		value = float64(val)
	case json.Number:
		f, err := val.Float64()
		if err != nil {
			return 0, false
		}
		value = f
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil {
			return 0, false
		}
		value = f
	default:
		return 0, false
	}

	if math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

func normalizeValue(name string, raw any, warnings *[]ValidationWarning) (int, bool) {
	if raw == nil {
		*warnings = append(*warnings, ValidationWarning{Dimension: name, Reason: reasonMissing})
		return MinScore, false
	}

	value, ok := coerce(raw)
	if !ok {
		*warnings = append(*warnings, ValidationWarning{Dimension: name, Reason: reasonNotValid, Raw: raw})
		return MinScore, false
	}

	if value != math.Trunc(value) {
		*warnings = append(*warnings, ValidationWarning{Dimension: name, Reason: reasonNotInt, Raw: raw})
		value = math.Round(value)
	}

	if value < MinScore || value > MaxScore {
		*warnings = append(*warnings, ValidationWarning{Dimension: name, Reason: reasonRange, Raw: raw})
		value = math.Max(MinScore, math.Min(MaxScore, value))
	}

	return int(value), true
}

// normalizeScores validates the required dimensions in order and appends
// any additional numeric dimensions sorted by name.
func normalizeScores(required []string, raw map[string]any) ([]dedup.Score, []ValidationWarning) {
	var warnings []ValidationWarning
	scores := make([]dedup.Score, 0, len(required)+len(raw))
	seen := make(map[string]bool, len(required))

	for _, name := range required {
		value, _ := normalizeValue(name, raw[name], &warnings)
		scores = append(scores, dedup.Score{Name: name, Value: value})
		seen[name] = true
	}

	extra := make([]string, 0, len(raw))
	for name := range raw {
		if !seen[name] && name != "" {
			extra = append(extra, name)
		}
	}
	sort.Strings(extra)

	for _, name := range extra {
		var local []ValidationWarning
		value, ok := normalizeValue(name, raw[name], &local)
		warnings = append(warnings, local...)
		if !ok {
			continue
		}
		scores = append(scores, dedup.Score{Name: name, Value: value})
	}

	return scores, warnings
}

// normalizeOverall keeps the provider's overall score when it is usable
// and falls back to the rounded mean of the required dimensions.
func normalizeOverall(raw any, required []dedup.Score, warnings *[]ValidationWarning) int {
	if _, ok := coerce(raw); ok {
		value, _ := normalizeValue("overall", raw, warnings)
		return value
	}

	*warnings = append(*warnings, ValidationWarning{Dimension: "overall", Reason: reasonMean, Raw: raw})
	return meanOf(required)
}

func meanOf(scores []dedup.Score) int {
	if len(scores) == 0 {
		return MinScore
	}
	sum := 0
	for _, s := range scores {
		sum += s.Value
	}
	return int(math.Round(float64(sum) / float64(len(scores))))
}
