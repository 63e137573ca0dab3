package persistence

import (
	"fmt"
	"strings"
)

// ValidateID rejects identifiers that are empty or could escape a storage namespace.
func ValidateID(id string) error {
	if id == "" {
		return fmt.Errorf("%w: empty", ErrInvalidID)
	}

	if strings.Contains(id, "..") || strings.ContainsAny(id, "/\\") {
		return fmt.Errorf("%w: %q contains invalid characters", ErrInvalidID, id)
	}

	return nil
}
