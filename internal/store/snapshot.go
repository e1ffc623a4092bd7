package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

// Snapshot is a saved stationcube command line, replayed to rebuild a
// dataset or cube from the same inputs. OutputKind and OutputName name the
// dataset or cube the command line saves, when it saves one.
type Snapshot struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	CommandLine string     `json:"command_line"`
	OutputKind  string     `json:"output_kind,omitempty"`
	OutputName  string     `json:"output_name,omitempty"`
	CreatedAt   time.Time  `json:"created_at"`
	LastRunAt   *time.Time `json:"last_run_at,omitempty"`
	Runs        int        `json:"runs,omitempty"`
}

// PutSnapshot saves a snapshot. The key is snap:<ID>.
func (s *Store) PutSnapshot(snap Snapshot) error {
	b, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encoding snapshot: %w", err)
	}
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Put([]byte("snap:"+snap.ID), b)
	})
}

// GetSnapshot retrieves a snapshot by ID.
func (s *Store) GetSnapshot(id string) (Snapshot, bool, error) {
	var snap Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		v := tx.Bucket(bucketSnapshots).Get([]byte("snap:" + id))
		if v == nil {
			return nil
		}
		return json.Unmarshal(v, &snap)
	})
	if err != nil {
		return snap, false, err
	}
	return snap, snap.ID != "", nil
}

// ListSnapshots returns all snapshots ordered by key.
func (s *Store) ListSnapshots() ([]Snapshot, error) {
	var snaps []Snapshot
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).ForEach(func(k, v []byte) error {
			var snap Snapshot
			if err := json.Unmarshal(v, &snap); err != nil {
				return err
			}
			snaps = append(snaps, snap)
			return nil
		})
	})
	return snaps, err
}

// MarkSnapshotRun records a replay of snapshot id at the given time. It
// reports whether the snapshot exists.
func (s *Store) MarkSnapshotRun(id string, at time.Time) (bool, error) {
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketSnapshots)
		key := []byte("snap:" + id)
		v := b.Get(key)
		if v == nil {
			return nil
		}
		var snap Snapshot
		if err := json.Unmarshal(v, &snap); err != nil {
			return fmt.Errorf("decoding snapshot %s: %w", id, err)
		}
		at = at.UTC()
		snap.LastRunAt = &at
		snap.Runs++
		out, err := json.Marshal(snap)
		if err != nil {
			return fmt.Errorf("encoding snapshot: %w", err)
		}
		found = true
		return b.Put(key, out)
	})
	return found, err
}

// DeleteSnapshot removes a snapshot by ID.
func (s *Store) DeleteSnapshot(id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketSnapshots).Delete([]byte("snap:" + id))
	})
}
