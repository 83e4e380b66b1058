package logger

import (
	"strings"

	"go.uber.org/zap"
)

// Structured field keys shared by every component.
const (
	FieldProvider   = "ai_provider"
	FieldModel      = "ai_model"
	FieldPostingKey = "posting_key"
	FieldQueryKey   = "query_key"
	FieldProfileKey = "profile_key"
	FieldRunID      = "run_id"
	FieldPage       = "page"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts key/value pairs into zap fields. Entries with an
// empty key or value are dropped.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		value := strings.TrimSpace(field.Value)
		if key == "" || value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to logger. A nil logger becomes a no-op logger.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// CommonFields describes the AI provider and model.
func CommonFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}

func WithCommonFields(logger *zap.Logger, provider, model string) *zap.Logger {
	return WithFields(logger, CommonFields(provider, model)...)
}

// KeyFields returns the fields identifying one evaluation. Empty keys are omitted.
func KeyFields(posting, query, profile string) []zap.Field {
	return StringFields(
		StringField{Key: FieldPostingKey, Value: posting},
		StringField{Key: FieldQueryKey, Value: query},
		StringField{Key: FieldProfileKey, Value: profile},
	)
}

// WithRun attaches acquisition run fields to the logger.
func WithRun(logger *zap.Logger, runID, query, profile string) *zap.Logger {
	fields := StringFields(
		StringField{Key: FieldRunID, Value: runID},
		StringField{Key: FieldQueryKey, Value: query},
		StringField{Key: FieldProfileKey, Value: profile},
	)
	return WithFields(logger, fields...)
}
