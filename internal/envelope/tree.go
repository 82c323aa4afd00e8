// Package envelope reads the loosely shaped JSON replies of the backend.
// Every lookup is optional: malformed input, missing keys and wrong kinds are all "absent".
package envelope

import (
	"bytes"
	"encoding/json"
	"strings"
)

// Tree is a decoded JSON document
type Tree struct {
	root interface{}
}

// Parse decodes body. Invalid JSON yields an empty tree.
func Parse(body string) *Tree {
	dec := json.NewDecoder(bytes.NewReader([]byte(body)))
	dec.UseNumber()

	var root interface{}
	if err := dec.Decode(&root); err != nil {
		return &Tree{}
	}
	return &Tree{root: root}
}

// Lookup walks path through nested objects
func (t *Tree) Lookup(path ...string) (interface{}, bool) {
	if t == nil || t.root == nil {
		return nil, false
	}
	node := t.root
	for _, key := range path {
		obj, ok := node.(map[string]interface{})
		if !ok {
			return nil, false
		}
		node, ok = obj[key]
		if !ok || node == nil {
			return nil, false
		}
	}
	return node, true
}

// String returns a non-blank string or number at path
func (t *Tree) String(path ...string) (string, bool) {
	node, ok := t.Lookup(path...)
	if !ok {
		return "", false
	}
	var s string
	switch v := node.(type) {
	case string:
		s = v
	case json.Number:
		s = v.String()
	default:
		return "", false
	}
	if strings.TrimSpace(s) == "" {
		return "", false
	}
	return s, true
}

// Bool returns a boolean at path
func (t *Tree) Bool(path ...string) (value bool, ok bool) {
	node, found := t.Lookup(path...)
	if !found {
		return false, false
	}
	value, ok = node.(bool)
	return value, ok
}

// Object returns the subtree at path when it is a JSON object
func (t *Tree) Object(path ...string) (*Tree, bool) {
	node, ok := t.Lookup(path...)
	if !ok {
		return nil, false
	}
	if _, isObj := node.(map[string]interface{}); !isObj {
		return nil, false
	}
	return &Tree{root: node}, true
}

// IsObject reports whether the tree root is a JSON object
func (t *Tree) IsObject() bool {
	if t == nil {
		return false
	}
	_, ok := t.root.(map[string]interface{})
	return ok
}

// First returns the first non-blank string among paths, in order
func (t *Tree) First(paths ...[]string) (string, bool) {
	for _, p := range paths {
		if v, ok := t.String(p...); ok {
			return v, true
		}
	}
	return "", false
}

// Raw re-encodes the tree
func (t *Tree) Raw() string {
	if t == nil || t.root == nil {
		return ""
	}
	b, err := json.Marshal(t.root)
	if err != nil {
		return ""
	}
	return string(b)
}
