package stripesync

import "strconv"

// flattenSeparator joins nested keys in flattened property names.
const flattenSeparator = "__"

// Flatten converts a nested key/value tree into a flat property map:
//
//   - nested map keys are joined with "__"
//   - array elements are keyed by their index ("items__0__name")
//   - null values are dropped at every depth
//   - empty maps and empty arrays contribute nothing
//   - top-level scalars keep their original keys
//
// Flatten(unflatten(x)) stability is not guaranteed and must not be
// assumed: distinct trees can flatten to the same map.
func Flatten(props map[string]interface{}) map[string]interface{} {
	out := make(map[string]interface{}, len(props))
	flattenInto(out, "", props)
	return out
}

func flattenInto(out map[string]interface{}, prefix string, props map[string]interface{}) {
	for key, value := range props {
		flattenValue(out, joinKey(prefix, key), value)
	}
}

func flattenValue(out map[string]interface{}, key string, value interface{}) {
	switch v := value.(type) {
	case nil:
		// dropped
	case map[string]interface{}:
		flattenInto(out, key, v)
	case []interface{}:
		for i, elem := range v {
			flattenValue(out, joinKey(key, strconv.Itoa(i)), elem)
		}
	default:
		out[key] = v
	}
}

func joinKey(prefix, key string) string {
	if prefix == "" {
		return key
	}
	return prefix + flattenSeparator + key
}
