package formenc

import (
	"net/url"
	"testing"
)

func TestDecodeNested(t *testing.T) {
	root := Decode(map[string]string{
		"event":                   "ONCRMLEADUPDATE",
		"data[FIELDS][ID]":        "77",
		"auth[domain]":            "example.bitrix24.ru",
		"auth[application_token]": "tok123",
		"data[FIELDS][STATUS_ID]": "NEW",
	})

	if v, _ := root.Leaf("event"); v != "ONCRMLEADUPDATE" {
		t.Fatalf("event = %q", v)
	}
	fields := root.Child("data").Child("FIELDS")
	if fields == nil {
		t.Fatal("data.FIELDS missing")
	}
	if v, _ := fields.Leaf("ID"); v != "77" {
		t.Fatalf("data.FIELDS.ID = %q", v)
	}
	if v, _ := fields.Leaf("STATUS_ID"); v != "NEW" {
		t.Fatalf("data.FIELDS.STATUS_ID = %q", v)
	}
	auth := root.Child("auth")
	if v, _ := auth.Leaf("domain"); v != "example.bitrix24.ru" {
		t.Fatalf("auth.domain = %q", v)
	}
	if v, _ := auth.Leaf("application_token"); v != "tok123" {
		t.Fatalf("auth.application_token = %q", v)
	}
}

func TestDecodeDeepNesting(t *testing.T) {
	root := Decode(map[string]string{"a[b][c][d]": "x"})
	if v, _ := root.Child("a").Child("b").Child("c").Leaf("d"); v != "x" {
		t.Fatalf("a.b.c.d = %q", v)
	}
	if root.Child("a").Child("b").Len() != 1 {
		t.Fatal("intermediate level should hold exactly one child")
	}
}

func TestDecodeMalformedKeys(t *testing.T) {
	t.Run("closing bracket without opener", func(t *testing.T) {
		root := Decode(map[string]string{"ID]": "5"})
		if v, _ := root.Leaf("ID"); v != "5" {
			t.Fatalf("got %q, want flat ID entry", v)
		}
	})

	t.Run("missing closing bracket", func(t *testing.T) {
		root := Decode(map[string]string{"data[FIELDS": "x"})
		if v, _ := root.Leaf("data[FIELDS"); v != "x" {
			t.Fatalf("got %q, want literal key preserved", v)
		}
	})

	t.Run("leading bracket stripped", func(t *testing.T) {
		root := Decode(map[string]string{"[FIELDS][ID]": "9"})
		if v, _ := root.Child("FIELDS").Leaf("ID"); v != "9" {
			t.Fatalf("got %q", v)
		}
	})

	t.Run("plain bare key", func(t *testing.T) {
		root := Decode(map[string]string{"ts": "1700000000"})
		if v, _ := root.Leaf("ts"); v != "1700000000" {
			t.Fatalf("got %q", v)
		}
	})

	t.Run("trailing junk after close", func(t *testing.T) {
		root := Decode(map[string]string{"a[b]c": "1"})
		if v, _ := root.Child("a").Leaf("b"); v != "1" {
			t.Fatalf("got %q", v)
		}
	})

	t.Run("nesting replaces earlier flat leaf", func(t *testing.T) {
		root := NewObject()
		assign(root, "a", "flat")
		assign(root, "a[b]", "nested")
		if v, _ := root.Child("a").Leaf("b"); v != "nested" {
			t.Fatalf("got %q", v)
		}
	})
}

func TestDecodeValuesKeepsLast(t *testing.T) {
	root := DecodeValues(url.Values{"k": {"first", "second"}})
	if v, _ := root.Leaf("k"); v != "second" {
		t.Fatalf("got %q, want last value", v)
	}
}

func TestExtractID(t *testing.T) {
	cases := []struct {
		name string
		flat map[string]string
		want string
	}{
		{"direct", map[string]string{"ID": "1"}, "1"},
		{"fields child", map[string]string{"data[FIELDS][ID]": "77"}, "77"},
		{"deeply nested", map[string]string{"a[b][c][ID]": "42"}, "42"},
		{"sibling ids resolve in key order", map[string]string{"b[ID]": "2", "a[ID]": "1"}, "1"},
		{"empty payload", map[string]string{}, ""},
		{"no id anywhere", map[string]string{"event": "x", "data[FIELDS][TITLE]": "y"}, ""},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := ExtractID(Decode(tc.flat)); got != tc.want {
				t.Fatalf("ExtractID = %q, want %q", got, tc.want)
			}
		})
	}
}

func TestExtractIDArtifactKey(t *testing.T) {
	// Some payloads arrive with an "ID]"-named leaf left over from a
	// mangled key; the extractor still has to find it.
	fields := NewObject()
	fields.SetLeaf("ID]", "88")
	data := NewObject()
	data.children["FIELDS"] = fields
	root := NewObject()
	root.children["data"] = data

	if got := ExtractID(root); got != "88" {
		t.Fatalf("ExtractID = %q, want 88", got)
	}
}

func TestNodeNilSafety(t *testing.T) {
	var n *Node
	if n.Child("x") != nil {
		t.Fatal("nil node should have no children")
	}
	if _, ok := n.Value(); ok {
		t.Fatal("nil node should have no value")
	}
	if _, ok := NewLeaf("v").Leaf("x"); ok {
		t.Fatal("leaf should have no named children")
	}
}
