package storage

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/corvidlabs/memvault/pkg/core"
)

// MatchesFieldValue implements the metadata-query predicate shared by every
// Store backend's SearchMemoriesByMetadata (spec §4.1, §4.5): field is
// either a recognized top-level column (memoryType, importance, userId) or
// a dotted path into the memory's free-form Metadata map. This keeps the
// field-alias/normalization logic in one place rather than duplicated per
// SQL dialect (spec §9's "dynamic field-alias layer" note).
func MatchesFieldValue(m *core.Memory, field, value string) bool {
	switch field {
	case "memoryType", "type":
		return string(m.Type) == value
	case "importance":
		return strconv.Itoa(int(m.Importance)) == value
	case "userId":
		return m.UserID == value
	default:
		v, ok := GetMetadataPath(m.Metadata, field)
		return ok && v == value
	}
}

// GetMetadataPath reaches into a nested metadata map by a dotted path (e.g.
// "projectId" or "metadata.version" — the leading "metadata." prefix is
// optional and stripped) and renders the leaf as a string for comparison.
func GetMetadataPath(metadata map[string]interface{}, path string) (string, bool) {
	path = strings.TrimPrefix(path, "metadata.")
	if metadata == nil {
		return "", false
	}
	parts := strings.Split(path, ".")
	var cur interface{} = metadata
	for i, part := range parts {
		m, ok := cur.(map[string]interface{})
		if !ok {
			return "", false
		}
		v, ok := m[part]
		if !ok {
			return "", false
		}
		if i == len(parts)-1 {
			return stringify(v), true
		}
		cur = v
	}
	return "", false
}

func stringify(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprintf("%v", t)
	}
}
