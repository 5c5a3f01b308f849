package util

import "slices"

// OrderedMap is a string-keyed map that remembers insertion order.  It is
// used as a record container when member order must survive a decode.
type OrderedMap struct {
	keys   []string
	values map[string]any
}

// NewEmptyOrderedMap returns an empty map with room for n keys.
func NewEmptyOrderedMap(n int) *OrderedMap {
	return &OrderedMap{keys: make([]string, 0, n), values: make(map[string]any, n)}
}

// Set adds the key at the end, or replaces the value of an existing key
// without changing its position.
func (om *OrderedMap) Set(name string, val any) {
	if _, has := om.values[name]; !has {
		om.keys = append(om.keys, name)
	}
	om.values[name] = val
}

func (om *OrderedMap) Get(key string) (val any, has bool) {
	val, has = om.values[key]
	return
}

// Keys returns a copy of the keys in insertion order.
func (om *OrderedMap) Keys() []string {
	return slices.Clone(om.keys)
}

func (om *OrderedMap) Len() int {
	return len(om.keys)
}
