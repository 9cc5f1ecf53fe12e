package memory

import (
	"testing"
)

func TestEntriesObjectOrder(t *testing.T) {
	entries, ok := Entries(map[string]any{"b": 2, "a": 1, "c": 3})
	if !ok {
		t.Fatal("Entries(map) not ok")
	}
	want := []string{"a", "b", "c"}
	for i, e := range entries {
		if e.Key != want[i] {
			t.Errorf("entries[%d].Key = %v, want %s", i, e.Key, want[i])
		}
	}

	if _, ok := Entries(42); ok {
		t.Error("Entries(42) should not be list-like")
	}

	typed, ok := Entries([]string{"x", "y"})
	if !ok || len(typed) != 2 || typed[1].Value != "y" {
		t.Errorf("Entries([]string) = %v, %v", typed, ok)
	}
}

func TestTruthy(t *testing.T) {
	tests := []struct {
		v    any
		want bool
	}{
		{nil, false},
		{false, false},
		{true, true},
		{0, false},
		{0.0, false},
		{1, true},
		{"", false},
		{"x", true},
		{[]any{}, true},
		{map[string]any{}, true},
	}
	for _, tt := range tests {
		if got := Truthy(tt.v); got != tt.want {
			t.Errorf("Truthy(%#v) = %v, want %v", tt.v, got, tt.want)
		}
	}
}

func TestEqualNumbers(t *testing.T) {
	if !Equal(1, 1.0) {
		t.Error("Equal(1, 1.0) = false")
	}
	if !Equal(map[string]any{"n": int64(2)}, map[string]any{"n": 2.0}) {
		t.Error("nested numeric equality failed")
	}
	if Equal("1", 1) {
		t.Error(`Equal("1", 1) = true`)
	}
}

func TestToInt(t *testing.T) {
	if n, ok := ToInt(3.0); !ok || n != 3 {
		t.Errorf("ToInt(3.0) = %d, %v", n, ok)
	}
	if _, ok := ToInt(3.5); ok {
		t.Error("ToInt(3.5) should fail")
	}
	if n, ok := ToInt("12"); !ok || n != 12 {
		t.Errorf(`ToInt("12") = %d, %v`, n, ok)
	}
}
