package logger

import (
	"strings"

	"go.uber.org/zap"
)

const (
	// FieldStep is the structured log field key for a pipeline step name.
	FieldStep = "pipeline_step"
	// FieldGeneration is the structured log field key for a step attempt counter.
	FieldGeneration = "generation"
	// FieldStatus is the structured log field key for a step status.
	FieldStatus = "status"
	// FieldProvider is the structured log field key for the rewrite provider name.
	FieldProvider = "rewrite_provider"
	// FieldModel is the structured log field key for the AI model identifier.
	FieldModel = "ai_model"
)

// StringField describes a string-valued structured logging field.
type StringField struct {
	Key   string
	Value string
}

// StringFields converts the provided key/value pairs into zap fields, trimming
// whitespace and omitting entries with empty keys or values.
func StringFields(fields ...StringField) []zap.Field {
	result := make([]zap.Field, 0, len(fields))
	for _, field := range fields {
		key := strings.TrimSpace(field.Key)
		if key == "" {
			continue
		}

		value := strings.TrimSpace(field.Value)
		if value == "" {
			continue
		}

		result = append(result, zap.String(key, value))
	}

	return result
}

// WithFields attaches fields to the logger, falling back to a no-op logger when nil.
func WithFields(logger *zap.Logger, fields ...zap.Field) *zap.Logger {
	if logger == nil {
		logger = zap.NewNop()
	}

	if len(fields) == 0 {
		return logger
	}

	return logger.With(fields...)
}

// StepFields describes one attempt of a pipeline step.
func StepFields(step string, generation uint64) []zap.Field {
	fields := StringFields(StringField{Key: FieldStep, Value: step})
	if generation > 0 {
		fields = append(fields, zap.Uint64(FieldGeneration, generation))
	}
	return fields
}

// ProviderFields returns the rewrite provider and model fields, skipping empty values.
func ProviderFields(provider, model string) []zap.Field {
	return StringFields(
		StringField{Key: FieldProvider, Value: provider},
		StringField{Key: FieldModel, Value: model},
	)
}
