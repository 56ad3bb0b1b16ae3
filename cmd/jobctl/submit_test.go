package main

import (
	"reflect"
	"testing"

	"github.com/gridjobs/gridjob/job"
)

func TestParseArraySpecPlain(t *testing.T) {
	got, err := parseArraySpec("1-10")
	if err != nil {
		t.Fatal(err)
	}
	want := &job.ArraySpec{First: 1, Last: 10, Step: 1}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseArraySpec(%q) = %+v, want %+v", "1-10", got, want)
	}
}

func TestParseArraySpecWithStep(t *testing.T) {
	got, err := parseArraySpec("1-10:2")
	if err != nil {
		t.Fatal(err)
	}
	want := &job.ArraySpec{First: 1, Last: 10, Step: 2}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseArraySpec(%q) = %+v, want %+v", "1-10:2", got, want)
	}
}

func TestParseArraySpecEmpty(t *testing.T) {
	got, err := parseArraySpec("")
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("parseArraySpec(\"\") = %+v, want nil", got)
	}
}

func TestParseArraySpecRejectsMissingRange(t *testing.T) {
	if _, err := parseArraySpec("5"); err == nil {
		t.Fatal("expected an error for a spec with no range")
	}
}

func TestParseArraySpecRejectsBadStep(t *testing.T) {
	if _, err := parseArraySpec("1-10:x"); err == nil {
		t.Fatal("expected an error for a non-numeric step")
	}
}

func TestParseEnvironmentKeyValues(t *testing.T) {
	got, err := parseEnvironment([]string{"A=1", "B=2=3"})
	if err != nil {
		t.Fatal(err)
	}
	want := map[string]string{"A": "1", "B": "2=3"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseEnvironment() = %v, want %v", got, want)
	}
}

func TestParseEnvironmentEmpty(t *testing.T) {
	got, err := parseEnvironment(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("parseEnvironment(nil) = %v, want nil", got)
	}
}

func TestParseEnvironmentRejectsMissingEquals(t *testing.T) {
	if _, err := parseEnvironment([]string{"NOVALUE"}); err == nil {
		t.Fatal("expected an error for an entry with no '='")
	}
}

func TestParseIDListDelegatesToParseIDs(t *testing.T) {
	got, err := parseIDList("1-3+7")
	if err != nil {
		t.Fatal(err)
	}
	want := []int64{1, 2, 3, 7}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseIDList() = %v, want %v", got, want)
	}
}

func TestNonEmptyPtr(t *testing.T) {
	if nonEmptyPtr("") != nil {
		t.Fatal("nonEmptyPtr(\"\") should be nil")
	}
	p := nonEmptyPtr("x")
	if p == nil || *p != "x" {
		t.Fatalf("nonEmptyPtr(\"x\") = %v, want pointer to \"x\"", p)
	}
}
