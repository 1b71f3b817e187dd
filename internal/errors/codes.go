package errors

// Common error codes
const (
	// System errors
	ErrInternal        ErrorCode = "internal_error"
	ErrInvalidArgument ErrorCode = "invalid_argument"
	ErrUnavailable     ErrorCode = "service_unavailable"

	// Configuration errors
	ErrInvalidConfig ErrorCode = "invalid_configuration"
	ErrReadConfig    ErrorCode = "read_config_failed"
	ErrBindFlags     ErrorCode = "bind_flags_failed"

	// Ingestion errors
	ErrInvalidInput ErrorCode = "invalid_input"
	ErrInvalidMode  ErrorCode = "invalid_mode"

	// Classification errors
	ErrModelLoad      ErrorCode = "model_load_failed"
	ErrModelInvalid   ErrorCode = "model_invalid"
	ErrClassification ErrorCode = "classification_failed"

	// Storage errors
	ErrSinkWrite   ErrorCode = "sink_write_failed"
	ErrStorageInit ErrorCode = "storage_init_failed"
	ErrSchemaInit  ErrorCode = "schema_init_failed"
	ErrStorageRead ErrorCode = "storage_read_failed"
)

// Common error messages
var errorMessages = map[ErrorCode]string{
	ErrInternal:        "Internal error occurred",
	ErrInvalidArgument: "Invalid argument provided",
	ErrUnavailable:     "Service unavailable",
	ErrInvalidConfig:   "Invalid configuration",
	ErrReadConfig:      "Failed to read configuration",
	ErrBindFlags:       "Failed to bind flags",
	ErrInvalidInput:    "Invalid input",
	ErrInvalidMode:     "Invalid mode",
	ErrModelLoad:       "Failed to load classification model",
	ErrModelInvalid:    "Classification model is invalid",
	ErrClassification:  "Classification failed",
	ErrSinkWrite:       "Failed to write reading to sink",
	ErrStorageInit:     "Failed to initialize storage",
	ErrSchemaInit:      "Failed to initialize schema",
	ErrStorageRead:     "Failed to read storage",
}

// GetErrorMessage returns the message for a given error code
func GetErrorMessage(code ErrorCode) string {
	if msg, ok := errorMessages[code]; ok {
		return msg
	}

	return string(code)
}
