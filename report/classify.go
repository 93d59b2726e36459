package report

import (
	"encoding/json"
	"strings"

	"github.com/pithecene-io/runreport/types"
)

// Classify returns the log level for a task result.
//
//   - truthy "failed"  -> err
//   - truthy "changed" -> notice
//   - otherwise        -> info
//
// Missing keys count as not present. Never panics.
func Classify(result map[string]any) types.LogLevel {
	if truthy(result[types.ResultKeyFailed]) {
		return types.LogLevelErr
	}
	if truthy(result[types.ResultKeyChanged]) {
		return types.LogLevelNotice
	}
	return types.LogLevelInfo
}

// truthy applies JSON truthiness. Module results occasionally carry
// stringly booleans, so "false", "no", "off" and "0" are falsy too.
func truthy(v any) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		switch strings.ToLower(strings.TrimSpace(x)) {
		case "", "false", "no", "off", "0":
			return false
		}
		return true
	case json.Number:
		f, err := x.Float64()
		return err != nil || f != 0
	case float64:
		return x != 0
	case float32:
		return x != 0
	case int:
		return x != 0
	case int8:
		return x != 0
	case int16:
		return x != 0
	case int32:
		return x != 0
	case int64:
		return x != 0
	case uint:
		return x != 0
	case uint8:
		return x != 0
	case uint16:
		return x != 0
	case uint32:
		return x != 0
	case uint64:
		return x != 0
	case map[string]any:
		return len(x) > 0
	case []any:
		return len(x) > 0
	default:
		return true
	}
}
