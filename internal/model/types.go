// Package model defines the result envelope that every stationcube command
// returns and the small record types shared by the store and renderers.
package model

import "time"

// ─── Dataset and Cube Records ─────────────────────────────────────────────────

// DatasetInfo describes a long observation table held in the local store.
type DatasetInfo struct {
	Name     string    `json:"name"`
	Rows     int       `json:"rows"`
	Columns  []string  `json:"columns"`
	Codec    string    `json:"codec"`
	Bytes    int       `json:"bytes"`
	StoredAt time.Time `json:"stored_at"`
}

// CubeInfo describes a geo frame of per-station containers held in the
// local store.
type CubeInfo struct {
	Name      string    `json:"name"`
	Stations  int       `json:"stations"`
	Variables []string  `json:"variables"`
	Codec     string    `json:"codec"`
	Blobs     int       `json:"blobs"`
	StoredAt  time.Time `json:"stored_at"`
}

// ─── Result Envelope ─────────────────────────────────────────────────────────

// ResultStats carries timing and size metadata for a command result.
type ResultStats struct {
	DurationMs int64 `json:"duration_ms"`
	Items      int   `json:"items"`
}

// Result is the uniform envelope returned by every command.
// The Data field holds the typed payload; Kind identifies what is in it.
// Renderers switch on Kind to format output appropriately.
type Result struct {
	Kind        string      `json:"kind"`
	GeneratedAt time.Time   `json:"generated_at"`
	Command     string      `json:"command"`
	Data        interface{} `json:"data"`
	Warnings    []string    `json:"warnings,omitempty"`
	Stats       ResultStats `json:"stats"`
}

// Kind constants for Result.Kind.
const (
	KindLong     = "long"      // *frame.Frame in long layout
	KindWide     = "wide"      // *frame.Frame from a module reshape
	KindSummary  = "summary"   // []analyze.Summary
	KindTrend    = "trend"     // []analyze.TrendResult
	KindGeoFrame = "geo_frame" // *geo.Frame
	KindDataset  = "dataset"   // []model.DatasetInfo
	KindCube     = "cube"      // []model.CubeInfo
	KindTable    = "table"     // [][]string with a header row
)
