package routes

import (
	"encoding/json"
	"testing"
)

func TestConvertNumber(t *testing.T) {
	testCases := []struct {
		in   string
		want any
	}{
		{"42", int64(42)},
		{"-7", int64(-7)},
		{"0", int64(0)},
		{"1.5", 1.5},
		{"1e3", 1000.0},
		{"blue", "blue"},
		{"", ""},
		{"1_000", "1_000"},
		{"0x1p-2", "0x1p-2"},
		{"NaN", "NaN"},
		{"inf", "inf"},
		{"99999999999999999999", json.Number("99999999999999999999")},
		{"+99999999999999999999", json.Number("99999999999999999999")},
	}
	for _, tc := range testCases {
		if got := convertNumber(tc.in); got != tc.want {
			t.Fatalf("convertNumber(%q) = %#v, want %#v", tc.in, got, tc.want)
		}
	}
}

func TestConvertValuesKeepsLargeIntegersExact(t *testing.T) {
	encoded, err := json.Marshal(convertValues(map[string][]string{
		"big":  {"99999999999999999999"},
		"sep":  {"1_000"},
		"list": {"1", "x"},
	}))
	if err != nil {
		t.Fatalf("marshal failed: %v", err)
	}
	want := `{"big":99999999999999999999,"list":[1,"x"],"sep":"1_000"}`
	if string(encoded) != want {
		t.Fatalf("got %s, want %s", encoded, want)
	}
}
