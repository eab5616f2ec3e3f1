// ABOUTME: Differential comparator for two servers' results of the same tool call
// ABOUTME: Compares error presence, key sets, runtime shapes, and sequence lengths only

package diff

import (
	"fmt"
	"sort"
)

// DefaultIgnoredFields returns the volatile fields excluded from comparison:
// timestamp-like values expected to differ between independent runs.
func DefaultIgnoredFields() map[string]bool {
	return map[string]bool{
		"updated":    true,
		"created":    true,
		"created_on": true,
		"updated_on": true,
		"date":       true,
		"timestamp":  true,
	}
}

// Comparator reports structural divergence between two implementations'
// results. Scalar values are deliberately never compared: the harness checks
// shape equivalence, not value equivalence.
type Comparator struct {
	// LabelA and LabelB name the implementations in difference messages.
	LabelA string
	LabelB string
	// Ignore lists volatile field names. Nil means DefaultIgnoredFields.
	Ignore map[string]bool
}

// Compare returns human-readable differences between the two results. An
// empty slice means no detected divergence.
func (c Comparator) Compare(a, b map[string]any) []string {
	ignore := c.Ignore
	if ignore == nil {
		ignore = DefaultIgnoredFields()
	}

	_, aErr := a["error"]
	_, bErr := b["error"]
	switch {
	case aErr && !bErr:
		return []string{fmt.Sprintf("%s returned error, %s did not", c.LabelA, c.LabelB)}
	case bErr && !aErr:
		return []string{fmt.Sprintf("%s returned error, %s did not", c.LabelB, c.LabelA)}
	case aErr && bErr:
		// Both errored: a match. Error payloads are not inspected.
		return nil
	}

	var differences []string

	aKeys := keySet(a, ignore)
	bKeys := keySet(b, ignore)

	if missing := subtract(aKeys, bKeys); len(missing) > 0 {
		differences = append(differences, fmt.Sprintf("Keys missing in %s: %v", c.LabelB, missing))
	}
	if missing := subtract(bKeys, aKeys); len(missing) > 0 {
		differences = append(differences, fmt.Sprintf("Keys missing in %s: %v", c.LabelA, missing))
	}

	for _, key := range intersect(aKeys, bKeys) {
		av, bv := a[key], b[key]

		aSeq, aIsSeq := av.([]any)
		bSeq, bIsSeq := bv.([]any)
		switch {
		case aIsSeq && bIsSeq:
			// Element content is deliberately not inspected: listing order and
			// pagination may legitimately differ between implementations.
			if len(aSeq) != len(bSeq) {
				differences = append(differences, fmt.Sprintf(
					"Array %q length differs: %s=%d, %s=%d",
					key, c.LabelA, len(aSeq), c.LabelB, len(bSeq)))
			}
		case shapeOf(av) != shapeOf(bv):
			differences = append(differences, fmt.Sprintf(
				"Type mismatch for %q: %s=%s, %s=%s",
				key, c.LabelA, shapeOf(av), c.LabelB, shapeOf(bv)))
		}
	}

	return differences
}

// keySet returns the sorted keys of m minus the ignore set.
func keySet(m map[string]any, ignore map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		if !ignore[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// subtract returns the elements of a not present in b. Inputs are sorted.
func subtract(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, k := range b {
		set[k] = true
	}
	var out []string
	for _, k := range a {
		if !set[k] {
			out = append(out, k)
		}
	}
	return out
}

// intersect returns the elements present in both. Inputs are sorted, so the
// result is too, keeping difference output deterministic.
func intersect(a, b []string) []string {
	set := make(map[string]bool, len(b))
	for _, k := range b {
		set[k] = true
	}
	var out []string
	for _, k := range a {
		if set[k] {
			out = append(out, k)
		}
	}
	return out
}

// shapeOf names a decoded JSON value's runtime shape.
func shapeOf(v any) string {
	switch v.(type) {
	case nil:
		return "null"
	case bool:
		return "bool"
	case float64:
		return "number"
	case string:
		return "string"
	case []any:
		return "array"
	case map[string]any:
		return "object"
	default:
		return fmt.Sprintf("%T", v)
	}
}
