package capture

import (
	"encoding/json"
	"fmt"

	"gorm.io/datatypes"
)

// Metadata is the free-form JSON object stored in entries.metadata.
type Metadata map[string]any

// MergeMetadata returns base patched with patch. Nested objects merge key by
// key; any other patch value replaces the base value. Neither input is mutated.
func MergeMetadata(base, patch Metadata) Metadata {
	out := make(Metadata, len(base)+len(patch))
	for k, v := range base {
		out[k] = cloneValue(v)
	}
	for k, pv := range patch {
		pm, pIsMap := asMap(pv)
		bm, bIsMap := asMap(out[k])
		if pIsMap && bIsMap {
			out[k] = map[string]any(MergeMetadata(bm, pm))
			continue
		}
		out[k] = cloneValue(pv)
	}
	return out
}

func asMap(v any) (Metadata, bool) {
	switch m := v.(type) {
	case Metadata:
		return m, true
	case map[string]any:
		return Metadata(m), true
	default:
		return nil, false
	}
}

func cloneValue(v any) any {
	if m, ok := asMap(v); ok {
		return map[string]any(MergeMetadata(nil, m))
	}
	if s, ok := v.([]any); ok {
		out := make([]any, len(s))
		for i := range s {
			out[i] = cloneValue(s[i])
		}
		return out
	}
	return v
}

// DecodeMetadata parses a JSON column. Empty or null input yields an empty map.
func DecodeMetadata(raw datatypes.JSON) (Metadata, error) {
	out := Metadata{}
	if len(raw) == 0 || string(raw) == "null" {
		return out, nil
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, fmt.Errorf("decode metadata: %w", err)
	}
	if out == nil {
		out = Metadata{}
	}
	return out, nil
}

func (m Metadata) JSON() (datatypes.JSON, error) {
	if m == nil {
		return datatypes.JSON([]byte("{}")), nil
	}
	b, err := json.Marshal(m)
	if err != nil {
		return nil, err
	}
	return datatypes.JSON(b), nil
}
