// Package formenc decodes the bracket-nested key convention used by
// form-urlencoded webhook bodies, where a key like "data[FIELDS][ID]"
// represents a nested object path. Bitrix24 posts events in this shape
// instead of JSON, and the keys it produces are frequently malformed,
// so decoding must degrade to flatter structure rather than fail.
package formenc

import (
	"encoding/json"
	"net/url"
	"sort"
	"strconv"
	"strings"
)

// Node is a tagged tree value: either a leaf carrying a string, or an
// object carrying named children. A nil *Node is a valid empty object
// for read operations.
type Node struct {
	leaf     bool
	value    string
	children map[string]*Node
}

// NewObject returns an empty object node.
func NewObject() *Node {
	return &Node{children: make(map[string]*Node)}
}

// NewLeaf returns a leaf node holding value.
func NewLeaf(value string) *Node {
	return &Node{leaf: true, value: value}
}

// IsLeaf reports whether the node is a leaf.
func (n *Node) IsLeaf() bool {
	return n != nil && n.leaf
}

// Value returns the leaf value. ok is false for objects and nil nodes.
func (n *Node) Value() (string, bool) {
	if n == nil || !n.leaf {
		return "", false
	}
	return n.value, true
}

// Child returns the named child of an object node, or nil.
func (n *Node) Child(key string) *Node {
	if n == nil || n.leaf {
		return nil
	}
	return n.children[key]
}

// Leaf returns the string value of the named leaf child.
func (n *Node) Leaf(key string) (string, bool) {
	return n.Child(key).Value()
}

// Children returns the object's child map for iteration. Leaves and nil
// nodes return nil.
func (n *Node) Children() map[string]*Node {
	if n == nil || n.leaf {
		return nil
	}
	return n.children
}

// Len returns the number of children of an object node.
func (n *Node) Len() int {
	return len(n.Children())
}

// SetLeaf sets key to a leaf value, replacing any existing child.
func (n *Node) SetLeaf(key, value string) {
	n.children[key] = NewLeaf(value)
}

// object returns the named child as an object, creating it if absent.
// An existing leaf under the key is replaced: nesting wins over a
// previously seen flat value, and decoding never fails.
func (n *Node) object(key string) *Node {
	if child, ok := n.children[key]; ok && !child.leaf {
		return child
	}
	child := NewObject()
	n.children[key] = child
	return child
}

// Decode converts a flat key/value mapping into a nested Node tree.
// Repeated writes to one path overwrite (last write wins); malformed
// keys degrade to flat entries instead of producing an error.
func Decode(flat map[string]string) *Node {
	root := NewObject()
	for key, value := range flat {
		assign(root, key, value)
	}
	return root
}

// DecodeValues decodes url.Values, keeping the last value of each key.
func DecodeValues(values url.Values) *Node {
	flat := make(map[string]string, len(values))
	for key, vals := range values {
		if len(vals) > 0 {
			flat[key] = vals[len(vals)-1]
		}
	}
	return Decode(flat)
}

// FromMap converts a decoded JSON object into a Node tree. Nested
// objects recurse; scalar values are stringified the way form values
// arrive. Bracket keys inside JSON are kept literal, which is what the
// flat-key fallbacks elsewhere expect.
func FromMap(data map[string]any) *Node {
	root := NewObject()
	for key, value := range data {
		root.children[key] = fromValue(value)
	}
	return root
}

func fromValue(value any) *Node {
	switch v := value.(type) {
	case map[string]any:
		return FromMap(v)
	case string:
		return NewLeaf(v)
	case float64:
		return NewLeaf(strconv.FormatFloat(v, 'f', -1, 64))
	case bool:
		return NewLeaf(strconv.FormatBool(v))
	case nil:
		return NewLeaf("")
	default:
		// Arrays and anything else: keep the JSON text; nothing
		// downstream digs into list values.
		encoded, err := json.Marshal(v)
		if err != nil {
			return NewLeaf("")
		}
		return NewLeaf(string(encoded))
	}
}

// assign parses one bracket-nested key and writes value into result.
// The handling of leading "[", trailing "]" without an opener, and
// missing closing brackets mirrors exactly what the CRM is observed to
// send; every malformed shape must land somewhere rather than error.
// When more brackets follow the first segment, the extracted inner
// segment is promoted to the next key's head ("a[b][c]" descends into
// "a" and re-parses "b[c]"), so each level lands as its own object.
func assign(result *Node, key, value string) {
	// "ID]" style: closing bracket without an opener. Store under the
	// bare name.
	if strings.HasSuffix(key, "]") && !strings.Contains(key, "[") {
		result.SetLeaf(strings.TrimRight(key, "]"), value)
		return
	}

	if !strings.Contains(key, "[") || !strings.Contains(key, "]") {
		result.SetLeaf(key, value)
		return
	}

	outer, rest, _ := strings.Cut(key, "[")

	inner, remaining, ok := strings.Cut(rest, "]")
	if !ok {
		// No closing bracket after the opener: fall back to the
		// literal key.
		result.SetLeaf(key, value)
		return
	}

	if outer == "" {
		// A leading "[" is an artifact of a mangled key: promote the
		// bracketed segment to the outer position and re-parse.
		if strings.HasPrefix(remaining, "[") {
			assign(result, inner+remaining, value)
		} else {
			result.SetLeaf(inner, value)
		}
		return
	}

	child := result.object(outer)
	if strings.HasPrefix(remaining, "[") {
		assign(child, inner+remaining, value)
	} else {
		child.SetLeaf(inner, value)
	}
}

// ExtractID digs an entity id out of an arbitrarily shaped node tree.
// It is purely structural: direct "ID" key first, then the "ID]"
// decoder artifact, then the same two inside a "FIELDS" child, then a
// depth-first scan of object children. Returns "" when nothing
// ID-shaped exists anywhere.
func ExtractID(n *Node) string {
	if n == nil || n.leaf {
		return ""
	}

	if id, ok := n.Leaf("ID"); ok {
		return id
	}
	if id, ok := n.Leaf("ID]"); ok {
		return id
	}

	if fields := n.Child("FIELDS"); fields != nil {
		if id, ok := fields.Leaf("ID"); ok {
			return id
		}
		if id, ok := fields.Leaf("ID]"); ok {
			return id
		}
	}

	// Map iteration order is random; scan children in sorted key order
	// so extraction from pathological payloads is reproducible.
	keys := make([]string, 0, len(n.children))
	for key := range n.children {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		if id := ExtractID(n.children[key]); id != "" {
			return id
		}
	}

	return ""
}
