package geotree

import "github.com/pkg/errors"

// Merger combines the existing value at a leaf with the value of a later,
// overlapping insertion. It is consulted only when the tree is configured
// with a non-nil Merger and the insert target already holds a Data record
// whose key differs from the one being inserted (spec.md 4.D, "Optional
// merge-on-collision"). It is invoked at most once per leaf per insert.
type Merger interface {
	Merge(existing, new interface{}) (interface{}, error)
}

// MergerFunc adapts a plain function to the Merger interface.
type MergerFunc func(existing, new interface{}) (interface{}, error)

func (f MergerFunc) Merge(existing, new interface{}) (interface{}, error) {
	return f(existing, new)
}

// MapMerger is a Merger for map[string]interface{} values: it overlays the
// new map's keys on top of the existing map's, keeping existing keys the
// new map does not mention. It is the merger exercised by the layered
// merge-on-collision scenario in spec.md 8.
var MapMerger Merger = MergerFunc(mapMerge)

func mapMerge(existing, new interface{}) (interface{}, error) {
	existingMap, ok := existing.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("existing value is %T, not a map[string]interface{}", existing)
	}
	newMap, ok := new.(map[string]interface{})
	if !ok {
		return nil, errors.Errorf("new value is %T, not a map[string]interface{}", new)
	}
	merged := make(map[string]interface{}, len(existingMap)+len(newMap))
	for k, v := range existingMap {
		merged[k] = v
	}
	for k, v := range newMap {
		merged[k] = v
	}
	return merged, nil
}
