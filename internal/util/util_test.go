package util_test

import (
	"errors"
	"math"
	"testing"
	"time"

	"github.com/derickschaefer/stationcube/internal/util"
)

func TestParseTimeLayouts(t *testing.T) {
	want := time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC)
	for _, s := range []string{
		"2024-05-06T07:08:09Z",
		"2024-05-06T09:08:09+02:00",
		"2024-05-06T07:08:09",
		"2024-05-06 07:08:09",
	} {
		got, err := util.ParseTime(s)
		if err != nil {
			t.Errorf("%q: %v", s, err)
			continue
		}
		if !got.Equal(want) || got.Location() != time.UTC {
			t.Errorf("%q: got %v", s, got)
		}
	}
	d, err := util.ParseTime("2024-05-06")
	if err != nil || !d.Equal(time.Date(2024, 5, 6, 0, 0, 0, 0, time.UTC)) {
		t.Errorf("date-only: %v %v", d, err)
	}
}

func TestParseTimeInvalid(t *testing.T) {
	if _, err := util.ParseTime("06/05/2024"); err == nil {
		t.Error("expected error")
	}
}

func TestParseValue(t *testing.T) {
	for _, s := range []string{"", ".", "NaN", "na", " null "} {
		v, err := util.ParseValue(s)
		if err != nil || !math.IsNaN(v) {
			t.Errorf("%q: expected NaN, got %g %v", s, v, err)
		}
	}
	v, err := util.ParseValue(" -3.25 ")
	if err != nil || v != -3.25 {
		t.Errorf("expected -3.25, got %g %v", v, err)
	}
	if _, err := util.ParseValue("abc"); err == nil {
		t.Error("expected error for abc")
	}
}

func TestFormatValue(t *testing.T) {
	if got := util.FormatValue(math.NaN()); got != "." {
		t.Errorf("NaN: got %q", got)
	}
	if got := util.FormatValue(12.5); got != "12.5" {
		t.Errorf("12.5: got %q", got)
	}
}

func TestMultiError(t *testing.T) {
	var m util.MultiError
	if m.Err() != nil {
		t.Error("empty MultiError should be nil")
	}
	sentinel := errors.New("boom")
	m.Add(nil)
	m.Add(errors.New("first"))
	m.Add(sentinel)
	err := m.Err()
	if err == nil || err.Error() != "first; boom" {
		t.Errorf("unexpected error %v", err)
	}
	if !errors.Is(err, sentinel) {
		t.Error("errors.Is should find the sentinel")
	}
}
