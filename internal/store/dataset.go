package store

import (
	"encoding/json"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/stationcube/internal/arrowio"
	"github.com/derickschaefer/stationcube/internal/frame"
	"github.com/derickschaefer/stationcube/internal/model"
)

// Each dataset is a nested bucket under datasets holding:
//
//	info: JSON model.DatasetInfo
//	data: envelope around an Arrow IPC stream
var (
	keyInfo = []byte("info")
	keyData = []byte("data")
)

// PutDataset stores f under name, replacing any previous dataset with that
// name, and returns the recorded info.
func (s *Store) PutDataset(name string, f *frame.Frame) (model.DatasetInfo, error) {
	if name == "" {
		return model.DatasetInfo{}, fmt.Errorf("dataset name is empty")
	}
	raw, err := arrowio.Marshal(f)
	if err != nil {
		return model.DatasetInfo{}, fmt.Errorf("encoding dataset %s: %w", name, err)
	}
	payload, err := seal(s.codec, raw)
	if err != nil {
		return model.DatasetInfo{}, fmt.Errorf("dataset %s: %w", name, err)
	}
	info := model.DatasetInfo{
		Name:     name,
		Rows:     f.Len(),
		Columns:  f.Names(),
		Codec:    s.codec.Name(),
		Bytes:    len(payload),
		StoredAt: time.Now().UTC(),
	}
	infoJSON, err := json.Marshal(info)
	if err != nil {
		return model.DatasetInfo{}, fmt.Errorf("encoding dataset info: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketDatasets)
		if root.Bucket([]byte(name)) != nil {
			if err := root.DeleteBucket([]byte(name)); err != nil {
				return err
			}
		}
		b, err := root.CreateBucket([]byte(name))
		if err != nil {
			return err
		}
		if err := b.Put(keyInfo, infoJSON); err != nil {
			return err
		}
		return b.Put(keyData, payload)
	})
	if err != nil {
		return model.DatasetInfo{}, fmt.Errorf("storing dataset %s: %w", name, err)
	}
	return info, nil
}

// GetDataset retrieves a dataset by name.
// Returns (frame, true, nil) if found, (nil, false, nil) if not found.
func (s *Store) GetDataset(name string) (*frame.Frame, bool, error) {
	var raw []byte
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketDatasets).Bucket([]byte(name))
		if b == nil {
			return nil
		}
		found = true
		var err error
		raw, err = unseal(b.Get(keyData))
		return err
	})
	if err != nil {
		return nil, false, fmt.Errorf("dataset %s: %w", name, err)
	}
	if !found {
		return nil, false, nil
	}
	f, err := arrowio.Unmarshal(raw)
	if err != nil {
		return nil, false, fmt.Errorf("dataset %s: %w", name, err)
	}
	return f, true, nil
}

// ListDatasets returns the info of every stored dataset, sorted by name.
func (s *Store) ListDatasets() ([]model.DatasetInfo, error) {
	var infos []model.DatasetInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketDatasets)
		return root.ForEach(func(k, v []byte) error {
			b := root.Bucket(k)
			if b == nil {
				return nil
			}
			var info model.DatasetInfo
			if err := json.Unmarshal(b.Get(keyInfo), &info); err != nil {
				return fmt.Errorf("dataset %s info: %w", k, err)
			}
			infos = append(infos, info)
			return nil
		})
	})
	return infos, err
}

// DeleteDataset removes a dataset. It reports whether the dataset existed.
func (s *Store) DeleteDataset(name string) (bool, error) {
	return s.deleteNested(bucketDatasets, name)
}

func (s *Store) deleteNested(bucket []byte, name string) (bool, error) {
	found := false
	err := s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucket)
		if root.Bucket([]byte(name)) == nil {
			return nil
		}
		found = true
		return root.DeleteBucket([]byte(name))
	})
	return found, err
}
