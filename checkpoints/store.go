// Package checkpoints persists completed subtask checkpoints to a storage
// location and finds the latest one to resume from.
package checkpoints

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strconv"
	"strings"
	"sync"

	"github.com/google/btree"
	"reduction.dev/ckptsink/clocks"
	"reduction.dev/ckptsink/storage/locations"
)

const fileExt = ".ckpt"

const DefaultRetain = 3

type Store struct {
	location locations.StorageLocation
	retain   int
	clock    clocks.Clock
	log      *slog.Logger

	mu      sync.Mutex
	indexes map[int]*btree.BTreeG[uint64] // Checkpoint IDs per subtask index
}

type StoreParams struct {
	Location locations.StorageLocation
	// Retain is the number of checkpoints kept per subtask. Older ones are
	// removed after each save.
	Retain int
	Clock  clocks.Clock
}

func NewStore(params StoreParams) *Store {
	if params.Retain < 1 {
		params.Retain = DefaultRetain
	}
	if params.Clock == nil {
		params.Clock = clocks.NewSystemClock()
	}
	return &Store{
		location: params.Location,
		retain:   params.Retain,
		clock:    params.Clock,
		log:      slog.With("instanceID", "checkpoints"),
		indexes:  make(map[int]*btree.BTreeG[uint64]),
	}
}

// Save assigns the next ID for the checkpoint's subtask, writes it and prunes
// checkpoints beyond the retention limit. ID, CreatedAt and URI are set on
// ckpt.
func (s *Store) Save(ctx context.Context, ckpt *Checkpoint) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.indexLocked(ctx, ckpt.Subtask.Index)
	if err != nil {
		return err
	}

	ckpt.ID = 1
	if last, ok := index.Max(); ok {
		ckpt.ID = last + 1
	}
	ckpt.CreatedAt = s.clock.Now()

	uri, err := s.location.Write(ctx, checkpointPath(ckpt.Subtask.Index, ckpt.ID), bytes.NewReader(ckpt.Marshal()))
	if err != nil {
		return fmt.Errorf("writing checkpoint %d for subtask %d: %w", ckpt.ID, ckpt.Subtask.Index, err)
	}
	ckpt.URI = uri
	index.ReplaceOrInsert(ckpt.ID)
	s.log.Debug("wrote checkpoint", "uri", uri, "bytes", len(ckpt.WriterState))

	s.pruneLocked(ctx, ckpt.Subtask.Index, index)
	return nil
}

// Latest returns the newest checkpoint for a subtask or nil when the subtask
// has never completed one.
func (s *Store) Latest(ctx context.Context, subtask int) (*Checkpoint, error) {
	s.mu.Lock()
	index, err := s.indexLocked(ctx, subtask)
	var id uint64
	var ok bool
	if err == nil {
		id, ok = index.Max()
	}
	s.mu.Unlock()

	if err != nil || !ok {
		return nil, err
	}
	return s.Load(ctx, checkpointPath(subtask, id))
}

// Load reads a checkpoint by URI or by a path relative to the store's location.
func (s *Store) Load(ctx context.Context, uri string) (*Checkpoint, error) {
	data, err := s.location.Read(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("reading checkpoint %s: %w", uri, err)
	}
	ckpt, err := Unmarshal(data)
	if err != nil {
		return nil, fmt.Errorf("decoding checkpoint %s: %w", uri, err)
	}
	ckpt.URI = uri
	return ckpt, nil
}

// IDs lists the retained checkpoint IDs of a subtask in ascending order.
func (s *Store) IDs(ctx context.Context, subtask int) ([]uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	index, err := s.indexLocked(ctx, subtask)
	if err != nil {
		return nil, err
	}
	ids := make([]uint64, 0, index.Len())
	index.Ascend(func(id uint64) bool {
		ids = append(ids, id)
		return true
	})
	return ids, nil
}

// indexLocked returns the ID index for a subtask, building it from a listing
// the first time the subtask is used.
func (s *Store) indexLocked(ctx context.Context, subtask int) (*btree.BTreeG[uint64], error) {
	if index, ok := s.indexes[subtask]; ok {
		return index, nil
	}

	index := btree.NewOrderedG[uint64](16)
	for uri, err := range s.location.List(ctx, subtaskDir(subtask)+"/") {
		if err != nil {
			return nil, fmt.Errorf("listing checkpoints for subtask %d: %w", subtask, err)
		}
		id, ok := parseCheckpointID(uri)
		if !ok {
			s.log.Warn("ignoring unrecognized file in checkpoint location", "uri", uri)
			continue
		}
		index.ReplaceOrInsert(id)
	}

	s.indexes[subtask] = index
	return index, nil
}

func (s *Store) pruneLocked(ctx context.Context, subtask int, index *btree.BTreeG[uint64]) {
	var obsolete []string
	for index.Len() > s.retain {
		id, _ := index.DeleteMin()
		obsolete = append(obsolete, checkpointPath(subtask, id))
	}
	if len(obsolete) == 0 {
		return
	}
	if err := s.location.Remove(ctx, obsolete...); err != nil {
		s.log.Error("failed to remove obsolete checkpoint files", "paths", obsolete, "err", err)
	}
}

func subtaskDir(subtask int) string {
	return "subtask-" + strconv.Itoa(subtask)
}

// checkpointPath zero-pads IDs so listings sort in ID order.
func checkpointPath(subtask int, id uint64) string {
	return fmt.Sprintf("%s/%020d%s", subtaskDir(subtask), id, fileExt)
}

func parseCheckpointID(uri string) (uint64, bool) {
	name, ok := strings.CutSuffix(path.Base(uri), fileExt)
	if !ok {
		return 0, false
	}
	id, err := strconv.ParseUint(name, 10, 64)
	return id, err == nil
}
