package settings

import (
	"encoding/json"
	"fmt"
)

// ValidationError reports a rejected settings update. The in-memory settings
// are left untouched when one is returned.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid settings: %s", e.Reason)
}

// Merge applies a partial, arbitrarily-shaped JSON patch onto current and
// returns the re-validated result. Merge semantics are structural: nested
// objects merge key-by-key, arrays are replaced wholesale (a patch that sets
// two custom rules discards any previously configured third), and scalars
// overwrite. Unknown keys pass through the merge untouched; only known fields
// affect behavior.
func Merge(current Settings, patch json.RawMessage) (Settings, error) {
	var patchValue interface{}
	if err := json.Unmarshal(patch, &patchValue); err != nil {
		return Settings{}, &ValidationError{Reason: fmt.Sprintf("patch is not valid JSON: %v", err)}
	}
	if _, ok := patchValue.(map[string]interface{}); !ok {
		return Settings{}, &ValidationError{Reason: "patch must be a JSON object"}
	}

	currentJSON, err := json.Marshal(current)
	if err != nil {
		return Settings{}, fmt.Errorf("marshal current settings: %w", err)
	}
	var currentValue interface{}
	if err := json.Unmarshal(currentJSON, &currentValue); err != nil {
		return Settings{}, fmt.Errorf("unmarshal current settings: %w", err)
	}

	merged := mergeValue(currentValue, patchValue)

	mergedJSON, err := json.Marshal(merged)
	if err != nil {
		return Settings{}, fmt.Errorf("marshal merged settings: %w", err)
	}
	var result Settings
	if err := json.Unmarshal(mergedJSON, &result); err != nil {
		return Settings{}, &ValidationError{Reason: fmt.Sprintf("merged shape does not fit the schema: %v", err)}
	}

	if err := Validate(result); err != nil {
		return Settings{}, err
	}
	return result, nil
}

// mergeValue merges src onto dst: objects key-by-key, arrays replaced
// wholesale, everything else overwritten by src.
func mergeValue(dst, src interface{}) interface{} {
	dstMap, dstOK := dst.(map[string]interface{})
	srcMap, srcOK := src.(map[string]interface{})
	if dstOK && srcOK {
		for key, srcVal := range srcMap {
			dstMap[key] = mergeValue(dstMap[key], srcVal)
		}
		return dstMap
	}
	return src
}

// Validate checks the invariants every Settings value must hold.
func Validate(s Settings) error {
	if s.SettingsVersion == 0 {
		return &ValidationError{Reason: "settingsVersion is required"}
	}
	switch s.DLPAction {
	case "mask", "warn", "block":
	default:
		return &ValidationError{Reason: fmt.Sprintf("dlpAction must be mask, warn, or block (got %q)", s.DLPAction)}
	}
	return nil
}
