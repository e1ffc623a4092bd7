package store

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/encoding/wkb"
	bolt "go.etcd.io/bbolt"

	"github.com/derickschaefer/stationcube/internal/geo"
	"github.com/derickschaefer/stationcube/internal/model"
	"github.com/derickschaefer/stationcube/internal/tstore"
)

// Each cube is a nested bucket under cubes holding:
//
//	info: JSON cubeRecord
//	geom: station id → WKB geometry (stations without geometry are absent)
//	ts  : variable + 0x00 + station id → envelope around a container
var (
	keyGeom = []byte("geom")
	keyTS   = []byte("ts")
)

type cubeRecord struct {
	Info model.CubeInfo `json:"info"`
	IDs  []string       `json:"ids"`
}

func tsKey(variable, station string) []byte {
	k := make([]byte, 0, len(variable)+1+len(station))
	k = append(k, variable...)
	k = append(k, 0)
	return append(k, station...)
}

// PutCube stores g under name, replacing any previous cube with that name.
// Missing containers are not written and read back as missing.
func (s *Store) PutCube(name string, g *geo.Frame) (model.CubeInfo, error) {
	if name == "" {
		return model.CubeInfo{}, fmt.Errorf("cube name is empty")
	}
	rec := cubeRecord{
		Info: model.CubeInfo{
			Name:      name,
			Stations:  g.Len(),
			Variables: g.Columns(),
			Codec:     s.codec.Name(),
			StoredAt:  time.Now().UTC(),
		},
		IDs: g.IDs(),
	}

	blobs := make(map[string][]byte)
	for _, variable := range g.Columns() {
		col, err := g.Column(variable)
		if err != nil {
			return model.CubeInfo{}, err
		}
		for i, id := range g.IDs() {
			ts := col.At(i)
			if ts == nil {
				continue
			}
			raw, err := ts.MarshalBinary()
			if err != nil {
				return model.CubeInfo{}, fmt.Errorf("cube %s: %s/%s: %w", name, variable, id, err)
			}
			payload, err := seal(s.codec, raw)
			if err != nil {
				return model.CubeInfo{}, fmt.Errorf("cube %s: %w", name, err)
			}
			blobs[string(tsKey(variable, id))] = payload
		}
	}
	rec.Info.Blobs = len(blobs)

	geoms := make(map[string][]byte)
	for i, id := range g.IDs() {
		geom := g.Geometry(i)
		if geom == nil {
			continue
		}
		b, err := wkb.Marshal(geom)
		if err != nil {
			return model.CubeInfo{}, fmt.Errorf("cube %s: geometry %s: %w", name, id, err)
		}
		geoms[id] = b
	}

	recJSON, err := json.Marshal(rec)
	if err != nil {
		return model.CubeInfo{}, fmt.Errorf("encoding cube info: %w", err)
	}

	err = s.db.Update(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketCubes)
		if root.Bucket([]byte(name)) != nil {
			if err := root.DeleteBucket([]byte(name)); err != nil {
				return err
			}
		}
		b, err := root.CreateBucket([]byte(name))
		if err != nil {
			return err
		}
		if err := b.Put(keyInfo, recJSON); err != nil {
			return err
		}
		gb, err := b.CreateBucket(keyGeom)
		if err != nil {
			return err
		}
		for id, v := range geoms {
			if err := gb.Put([]byte(id), v); err != nil {
				return err
			}
		}
		tb, err := b.CreateBucket(keyTS)
		if err != nil {
			return err
		}
		for k, v := range blobs {
			if err := tb.Put([]byte(k), v); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return model.CubeInfo{}, fmt.Errorf("storing cube %s: %w", name, err)
	}
	return rec.Info, nil
}

// GetCube retrieves a cube by name. Row and column order match the frame
// that was stored.
// Returns (frame, info, true, nil) if found, (nil, zero, false, nil) if not found.
func (s *Store) GetCube(name string) (*geo.Frame, model.CubeInfo, bool, error) {
	var rec cubeRecord
	var out *geo.Frame
	found := false
	err := s.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket(bucketCubes).Bucket([]byte(name))
		if b == nil {
			return nil
		}
		found = true
		if err := json.Unmarshal(b.Get(keyInfo), &rec); err != nil {
			return fmt.Errorf("info: %w", err)
		}

		gb := b.Bucket(keyGeom)
		geoms := make([]orb.Geometry, len(rec.IDs))
		for i, id := range rec.IDs {
			v := gb.Get([]byte(id))
			if v == nil {
				continue
			}
			geom, err := wkb.Unmarshal(v)
			if err != nil {
				return fmt.Errorf("%w: geometry %s: %v", ErrCorrupt, id, err)
			}
			geoms[i] = geom
		}
		var err error
		if out, err = geo.NewFrame(rec.IDs, geoms); err != nil {
			return err
		}

		tb := b.Bucket(keyTS)
		for _, variable := range rec.Info.Variables {
			items := make([]*tstore.TS, len(rec.IDs))
			for i, id := range rec.IDs {
				v := tb.Get(tsKey(variable, id))
				if v == nil {
					continue
				}
				raw, err := unseal(v)
				if err != nil {
					return fmt.Errorf("%s/%s: %w", variable, id, err)
				}
				if items[i], err = tstore.UnmarshalTS(raw); err != nil {
					return fmt.Errorf("%s/%s: %w", variable, id, err)
				}
			}
			if err := out.AddColumn(variable, tstore.NewArray(items)); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, model.CubeInfo{}, false, fmt.Errorf("cube %s: %w", name, err)
	}
	if !found {
		return nil, model.CubeInfo{}, false, nil
	}
	return out, rec.Info, true, nil
}

// ListCubes returns the info of every stored cube, sorted by name.
func (s *Store) ListCubes() ([]model.CubeInfo, error) {
	var infos []model.CubeInfo
	err := s.db.View(func(tx *bolt.Tx) error {
		root := tx.Bucket(bucketCubes)
		return root.ForEach(func(k, v []byte) error {
			b := root.Bucket(k)
			if b == nil {
				return nil
			}
			var rec cubeRecord
			if err := json.Unmarshal(b.Get(keyInfo), &rec); err != nil {
				return fmt.Errorf("cube %s info: %w", k, err)
			}
			infos = append(infos, rec.Info)
			return nil
		})
	})
	return infos, err
}

// DeleteCube removes a cube. It reports whether the cube existed.
func (s *Store) DeleteCube(name string) (bool, error) {
	return s.deleteNested(bucketCubes, name)
}
