package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"sort"
)

// CanonicalManifestHash computes the manifest's sha256_hash when the
// manifest itself doesn't carry one: SHA-256 over the JSON serialisation of
// contents with keys sorted and comma/colon separators, or over
// {rid, timestamp} when there are no contents (spec.md §4.3).
func CanonicalManifestHash(rid string, manifest map[string]any, contents map[string]any) string {
	var payload []byte
	if len(contents) > 0 {
		payload = canonicalJSON(contents)
	} else {
		timestamp, _ := manifest["timestamp"]
		payload = canonicalJSON(map[string]any{"rid": rid, "timestamp": timestamp})
	}
	sum := sha256.Sum256(payload)
	return hex.EncodeToString(sum[:])
}

// ManifestHash returns the manifest's declared sha256_hash, computing it via
// CanonicalManifestHash when absent.
func ManifestHash(rid string, manifest map[string]any, contents map[string]any) string {
	if manifest != nil {
		if h, ok := manifest["sha256_hash"].(string); ok && h != "" {
			return h
		}
	}
	return CanonicalManifestHash(rid, manifest, contents)
}

// canonicalJSON serializes v with object keys sorted and no extraneous
// whitespace, matching Python's json.dumps(v, sort_keys=True, separators=(",", ":")).
func canonicalJSON(v any) []byte {
	return marshalSorted(v)
}

func marshalSorted(v any) []byte {
	switch val := v.(type) {
	case map[string]any:
		keys := make([]string, 0, len(val))
		for k := range val {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		out := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				out = append(out, ',')
			}
			kb, _ := json.Marshal(k)
			out = append(out, kb...)
			out = append(out, ':')
			out = append(out, marshalSorted(val[k])...)
		}
		out = append(out, '}')
		return out
	case []any:
		out := []byte{'['}
		for i, item := range val {
			if i > 0 {
				out = append(out, ',')
			}
			out = append(out, marshalSorted(item)...)
		}
		out = append(out, ']')
		return out
	default:
		b, _ := json.Marshal(val)
		return b
	}
}
