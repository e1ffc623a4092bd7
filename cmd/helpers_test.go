package cmd

import (
	"os"
	"path/filepath"
	"reflect"
	"testing"
)

func TestOutputWriterDefault(t *testing.T) {
	globalFlags.Out = ""
	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter default: %v", err)
	}
	if w != os.Stdout {
		t.Fatalf("expected stdout writer passthrough")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("default closer should be nil error, got: %v", err)
	}
}

func TestOutputWriterFile(t *testing.T) {
	p := filepath.Join(t.TempDir(), "out.txt")
	globalFlags.Out = p
	t.Cleanup(func() { globalFlags.Out = "" })

	w, closeFn, err := outputWriter(os.Stdout)
	if err != nil {
		t.Fatalf("outputWriter file: %v", err)
	}
	if w == os.Stdout {
		t.Fatalf("expected file writer, got stdout")
	}
	if err := closeFn(); err != nil {
		t.Fatalf("closing output writer: %v", err)
	}
	if _, err := os.Stat(p); err != nil {
		t.Fatalf("expected output file to exist: %v", err)
	}
}

func TestParseList(t *testing.T) {
	got := parseList(" temp, rh,,temp ,wind")
	want := []string{"temp", "rh", "wind"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("parseList = %v, want %v", got, want)
	}
	if parseList("") != nil {
		t.Fatalf("empty input should give nil")
	}
}

func TestDetectInputFormat(t *testing.T) {
	cases := []struct {
		path, flag, want string
	}{
		{"obs.csv", "", inputCSV},
		{"obs.JSONL", "", inputJSONL},
		{"obs.ndjson", "", inputJSONL},
		{"obs.arrow", "", inputArrow},
		{"", "", inputCSV},
		{"obs.csv", "jsonl", inputJSONL},
	}
	for _, c := range cases {
		got, err := detectInputFormat(c.path, c.flag)
		if err != nil {
			t.Errorf("detectInputFormat(%q, %q): %v", c.path, c.flag, err)
			continue
		}
		if got != c.want {
			t.Errorf("detectInputFormat(%q, %q) = %q, want %q", c.path, c.flag, got, c.want)
		}
	}
	if _, err := detectInputFormat("obs.csv", "xml"); err == nil {
		t.Error("expected error for unknown input format")
	}
}

func TestHumanBytes(t *testing.T) {
	if got := humanBytes(512); got != "512 B" {
		t.Errorf("humanBytes(512) = %q", got)
	}
	if got := humanBytes(2048); got != "2.0 KB" {
		t.Errorf("humanBytes(2048) = %q", got)
	}
	if got := humanBytes(3 << 20); got != "3.0 MB" {
		t.Errorf("humanBytes(3MB) = %q", got)
	}
}
