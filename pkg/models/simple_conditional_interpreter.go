package models

import (
	"fmt"
	"strconv"
	"strings"
)

// noValue is what text/template prints for a missing map key.
const noValue = "<no value>"

type SimpleConditionalInterpreter struct{}

// Evaluate converts a rendered condition value to a boolean.
func (s SimpleConditionalInterpreter) Evaluate(exp any) (bool, error) {
	switch v := exp.(type) {
	case nil:
		return false, nil
	case bool:
		return v, nil
	case string:
		trimmed := strings.TrimSpace(v)
		if trimmed == "" || trimmed == noValue {
			return false, nil
		}

		if result, err := strconv.ParseBool(trimmed); err == nil {
			return result, nil
		}

		return true, nil
	case int:
		return v != 0, nil
	case int64:
		return v != 0, nil
	case float64:
		return v != 0, nil
	case []any:
		return len(v) > 0, nil
	case map[string]any:
		return len(v) > 0, nil
	default:
		return false, fmt.Errorf("cannot convert %T to boolean", exp)
	}
}
