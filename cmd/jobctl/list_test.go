package main

import (
	"reflect"
	"testing"

	"github.com/gridjobs/gridjob/job"
)

func TestParseStatusesEmpty(t *testing.T) {
	got, err := parseStatuses(nil)
	if err != nil {
		t.Fatal(err)
	}
	if got != nil {
		t.Fatalf("parseStatuses(nil) = %v, want nil", got)
	}
}

func TestParseStatusesMixedCase(t *testing.T) {
	got, err := parseStatuses([]string{"Success", "FAILURE"})
	if err != nil {
		t.Fatal(err)
	}
	want := []job.Status{job.Success, job.Failure}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseStatuses() = %v, want %v", got, want)
	}
}

func TestParseStatusesRejectsUnknown(t *testing.T) {
	if _, err := parseStatuses([]string{"bogus"}); err == nil {
		t.Fatal("expected an error for an unrecognized status name")
	}
}
