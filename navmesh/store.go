package navmesh

import (
	"fmt"
	"os"

	"go.uber.org/zap"
)

// MeshStore owns the currently loaded mesh. Load is all-or-nothing: the new
// set is fully decoded into a fresh Mesh first and only then swapped in, so
// a malformed set never disturbs the mesh already in service.
type MeshStore struct {
	log  *zap.Logger
	mesh *Mesh
	raw  []byte
}

func NewMeshStore(log *zap.Logger) *MeshStore {
	if log == nil {
		log = zap.NewNop()
	}
	return &MeshStore{log: log}
}

// Load builds a mesh from a binary set and swaps it in on success. On
// failure the previous mesh (if any) stays loaded and queryable.
func (s *MeshStore) Load(data []byte) error {
	header, tiles, err := ReadSet(data)
	if err != nil {
		s.log.Warn("navmesh set rejected", zap.Error(err))
		return err
	}

	mesh, err := NewMesh(&header.Params)
	if err != nil {
		s.log.Warn("navmesh set rejected", zap.Error(err))
		return err
	}
	for i, t := range tiles {
		if err := mesh.AddTile(t.Data, t.Ref); err != nil {
			s.log.Warn("navmesh tile rejected",
				zap.Int("tile", i), zap.Uint64("ref", uint64(t.Ref)), zap.Error(err))
			return err
		}
	}

	raw := make([]byte, len(data))
	copy(raw, data)
	s.mesh = mesh
	s.raw = raw
	s.log.Info("navmesh set loaded",
		zap.Int("tiles", mesh.TileCount()),
		zap.Int32("maxTiles", header.Params.MaxTiles),
		zap.Int("bytes", len(raw)))
	return nil
}

// LoadFile reads a set file and loads it.
func (s *MeshStore) LoadFile(path string) error {
	data, err := os.ReadFile(path)
	if err != nil {
		s.log.Warn("navmesh set unreadable", zap.String("path", path), zap.Error(err))
		return fmt.Errorf("navmesh: read set: %w", err)
	}
	return s.Load(data)
}

// Mesh returns the currently loaded mesh, or nil before the first
// successful Load.
func (s *MeshStore) Mesh() *Mesh { return s.mesh }

// Raw returns the bytes of the currently loaded set.
func (s *MeshStore) Raw() []byte { return s.raw }
