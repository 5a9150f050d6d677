package task

import "github.com/agentrpc/corerpc/errs"

// validateVariables rejects depth bombs and overlong strings before a merge
// is attempted, grounded on crates/pmcp-tasks/src/domain/record.rs's
// validate_variables helper (recursive JSON traversal, no schema library).
func validateVariables(vars map[string]any, maxDepth, maxStringLength int) error {
	for key, value := range vars {
		if err := validateValue(value, 1, maxDepth, maxStringLength); err != nil {
			return errs.Validationf("variable %q: %v", key, err)
		}
	}
	return nil
}

func validateValue(value any, depth, maxDepth, maxStringLength int) error {
	if depth > maxDepth {
		return errs.Validationf("exceeds maximum nesting depth %d", maxDepth)
	}

	switch v := value.(type) {
	case string:
		if len(v) > maxStringLength {
			return errs.Validationf("string of length %d exceeds maximum %d", len(v), maxStringLength)
		}
	case map[string]any:
		for k, nested := range v {
			if err := validateValue(nested, depth+1, maxDepth, maxStringLength); err != nil {
				return errs.Validationf("field %q: %v", k, err)
			}
		}
	case []any:
		for i, nested := range v {
			if err := validateValue(nested, depth+1, maxDepth, maxStringLength); err != nil {
				return errs.Validationf("index %d: %v", i, err)
			}
		}
	}
	return nil
}
