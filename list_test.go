package gridjob

import (
	"testing"
	"time"
)

func TestFormatAge(t *testing.T) {
	cases := []struct {
		d     time.Duration
		short bool
		want  string
	}{
		{30 * time.Second, true, "30s"},
		{90 * time.Second, true, "2m"},
		{90 * time.Minute, true, "2h"},
		{2 * 25 * time.Hour, true, "2d"},
		{9 * 24 * time.Hour, true, "1w"},
		{1 * time.Second, false, "1 second"},
		{2 * time.Second, false, "2 seconds"},
	}
	for _, c := range cases {
		got := FormatAge(c.d, c.short)
		if got != c.want {
			t.Errorf("FormatAge(%v, %v) = %q, want %q", c.d, c.short, got, c.want)
		}
	}
}
