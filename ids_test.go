package gridjob

import (
	"reflect"
	"testing"
)

func TestParseIDs(t *testing.T) {
	cases := []struct {
		spec string
		want []int64
	}{
		{"1", []int64{1}},
		{"1-3", []int64{1, 2, 3}},
		{"1-3+7", []int64{1, 2, 3, 7}},
		{"7+1-3", []int64{7, 1, 2, 3}},
	}
	for _, c := range cases {
		got, err := ParseIDs(c.spec)
		if err != nil {
			t.Fatalf("ParseIDs(%q): %v", c.spec, err)
		}
		if !reflect.DeepEqual(got, c.want) {
			t.Fatalf("ParseIDs(%q) = %v, want %v", c.spec, got, c.want)
		}
	}
}

func TestParseIDsEmpty(t *testing.T) {
	got, err := ParseIDs("")
	if err != nil {
		t.Fatal(err)
	}
	if len(got) != 0 {
		t.Fatalf("ParseIDs(\"\") = %v, want empty", got)
	}
}

func TestParseIDsRejectsBackwardsRange(t *testing.T) {
	if _, err := ParseIDs("5-2"); err == nil {
		t.Fatal("expected an error for a backwards range")
	}
}

func TestParseIDsRejectsGarbage(t *testing.T) {
	if _, err := ParseIDs("abc"); err == nil {
		t.Fatal("expected an error for a non-numeric id")
	}
}
