package extraction

import "errors"

// ErrSchemaValidation indicates model output that does not conform to the declared schema.
var ErrSchemaValidation = errors.New("output schema validation failed")

// IsSchemaValidationError checks if an error is a schema validation failure.
func IsSchemaValidationError(err error) bool {
	return errors.Is(err, ErrSchemaValidation)
}
