package cmd

import (
	"path/filepath"
	"regexp"
	"strings"
	"testing"

	"github.com/derickschaefer/stationcube/internal/model"
)

// ─── IDs ──────────────────────────────────────────────────────────────────────

func TestNewSnapshotIDIsULID(t *testing.T) {
	id := newSnapshotID()
	re := regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)
	if !re.MatchString(id) {
		t.Fatalf("snapshot id not a Crockford base32 ULID: %q", id)
	}
}

func TestNewSnapshotIDOrderedWithinMillisecond(t *testing.T) {
	prev := newSnapshotID()
	for i := 0; i < 1000; i++ {
		id := newSnapshotID()
		if id <= prev {
			t.Fatalf("id %d not after previous: %q <= %q", i, id, prev)
		}
		prev = id
	}
}

// ─── Output detection ─────────────────────────────────────────────────────────

func TestSnapshotOutput(t *testing.T) {
	cases := []struct {
		line, kind, name string
	}{
		{"cube build obs.csv --stations st.geojson --save jan", model.KindCube, "jan"},
		{"cube build --dataset lausanne --save=lausanne-2024", model.KindCube, "lausanne-2024"},
		{"fetch obs --vars temp --save lausanne", model.KindDataset, "lausanne"},
		{"cube build obs.csv --format geojson", "", ""},
		{"widen obs.csv --vars temp,rh --format csv", "", ""},
	}
	for _, c := range cases {
		kind, name, err := snapshotOutput(c.line)
		if err != nil {
			t.Errorf("%q: %v", c.line, err)
			continue
		}
		if kind != c.kind || name != c.name {
			t.Errorf("%q: got (%q, %q), want (%q, %q)", c.line, kind, name, c.kind, c.name)
		}
	}
}

func TestSnapshotOutputRejectsNonCommands(t *testing.T) {
	for _, line := range []string{
		"",
		"stationcube widen obs.csv",
		"plot obs.csv",
		"snapshot run 01HX",
	} {
		if _, _, err := snapshotOutput(line); err == nil {
			t.Errorf("%q: expected error", line)
		}
	}
}

func TestFlagValueLastWins(t *testing.T) {
	args := []string{"cube", "build", "--save", "a", "--save=b"}
	if got := flagValue(args, "save"); got != "b" {
		t.Errorf("flagValue = %q, want b", got)
	}
	if got := flagValue([]string{"cube", "build", "--save"}, "save"); got != "" {
		t.Errorf("dangling flag gave %q", got)
	}
}

// ─── save / show ──────────────────────────────────────────────────────────────

func TestSnapshotSaveRecordsOutput(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	out, err := run(t, "snapshot", "save", "--name", "jan-cube",
		"--cmd", "cube build obs.csv --stations st.geojson --save jan", "--db", db)
	if err != nil {
		t.Fatalf("snapshot save: %v", err)
	}
	if !strings.Contains(out, "Rebuilds cube jan") {
		t.Errorf("save output:\n%s", out)
	}

	out, err = run(t, "snapshot", "list", "--db", db)
	if err != nil {
		t.Fatalf("snapshot list: %v", err)
	}
	if !strings.Contains(out, "cube:jan") || !strings.Contains(out, "never") {
		t.Errorf("list output:\n%s", out)
	}
}

func TestSnapshotSaveRejectsUnknownCommand(t *testing.T) {
	db := filepath.Join(t.TempDir(), "test.db")
	if _, err := run(t, "snapshot", "save", "--name", "x", "--cmd", "plot obs.csv", "--db", db); err == nil {
		t.Fatal("expected error for a command line that is not a stationcube command")
	}
}
