package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
)

// DefaultCacheSlots is the number of blocks the slot cache can hold.
const DefaultCacheSlots = 1 << 14

// Disk represents the serialization implementation for reading and storing
// blocks in their own separate files on disk. A primary block is stored in
// <seq>.json and a block of a branch that has not been promoted yet is
// stored in <seq>_<branch>.json. Every BlockStore opened on the same
// directory shares the Disk and its cache.
type Disk struct {
	dir   string
	slots []atomic.Pointer[Block]
}

// NewDisk constructs a Disk value for use.
func NewDisk(dir string, cacheSlots int) (*Disk, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, err
	}

	if cacheSlots <= 0 {
		cacheSlots = DefaultCacheSlots
	}

	d := Disk{
		dir:   dir,
		slots: make([]atomic.Pointer[Block], cacheSlots),
	}

	return &d, nil
}

// Dir returns the directory holding the block files.
func (d *Disk) Dir() string {
	return d.dir
}

// Sweep removes files no chain can reach anymore: temporary files, overlay
// files of branches other than keep, and primary files at or beyond size.
func (d *Disk) Sweep(keep string, size uint64) (int, error) {
	entries, err := os.ReadDir(d.dir)
	if err != nil {
		return 0, err
	}

	var removed int
	for _, entry := range entries {
		name := entry.Name()

		remove := false
		switch {
		case strings.HasSuffix(name, ".tmp"):
			remove = true

		case strings.HasSuffix(name, ".json"):
			seq, branch, ok := parseName(name)
			switch {
			case !ok:
			case branch != "" && branch != keep:
				remove = true
			case branch == "" && seq >= size:
				remove = true
			}
		}

		if !remove {
			continue
		}

		if err := os.Remove(filepath.Join(d.dir, name)); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return removed, err
		}
		removed++
	}

	return removed, nil
}

func (d *Disk) primaryPath(seq uint64) string {
	return filepath.Join(d.dir, strconv.FormatUint(seq, 10)+".json")
}

func (d *Disk) secondaryPath(seq uint64, branch string) string {
	return filepath.Join(d.dir, strconv.FormatUint(seq, 10)+"_"+branch+".json")
}

// write stores the block in the named file. The data goes to a temporary
// file first and is renamed into place so a reader never sees a partial file.
func (d *Disk) write(path string, block Block) error {

	// Marshal the block for writing to disk in a more human readable format.
	data, err := json.MarshalIndent(NewBlockData(block), "", "  ")
	if err != nil {
		return err
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return err
	}

	if err := os.Rename(tmp, path); err != nil {
		os.Remove(tmp)
		return err
	}

	return nil
}

// read loads the block from the named file.
func (d *Disk) read(path string) (Block, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Block{}, err
	}

	var bd BlockData
	if err := json.Unmarshal(data, &bd); err != nil {
		return Block{}, fmt.Errorf("%w: decode %s: %v", ErrCorrupt, filepath.Base(path), err)
	}

	block, err := ToBlock(bd)
	if err != nil {
		return Block{}, fmt.Errorf("%w: %s: %v", ErrCorrupt, filepath.Base(path), err)
	}

	return block, nil
}

func (d *Disk) cached(hash bighash.Hash) (Block, bool) {
	b := d.slots[hash.Slot(len(d.slots))].Load()
	if b == nil || b.Hash != hash {
		return Block{}, false
	}
	return *b, true
}

func (d *Disk) cache(block Block) {
	d.slots[block.Hash.Slot(len(d.slots))].Store(&block)
}

func (d *Disk) evict(hash bighash.Hash) {
	slot := &d.slots[hash.Slot(len(d.slots))]
	if b := slot.Load(); b != nil && b.Hash == hash {
		slot.CompareAndSwap(b, nil)
	}
}

// parseName splits a block file name into its sequence number and branch.
func parseName(name string) (uint64, string, bool) {
	base := strings.TrimSuffix(name, ".json")

	seqStr, branch, _ := strings.Cut(base, "_")
	seq, err := strconv.ParseUint(seqStr, 10, 64)
	if err != nil {
		return 0, "", false
	}

	return seq, branch, true
}

// =============================================================================

// BlockStore tracks the blocks of a single chain. It maps a block hash to
// its sequence number and resolves the file holding the block, preferring
// the branch overlay file over the primary file.
type BlockStore struct {
	disk    *Disk
	branch  string
	lineage []string

	mu      sync.RWMutex
	primary bool
	seqs    map[bighash.Hash]uint64
}

// NewBlockStore constructs a store for the specified branch. A primary store
// writes primary files, other stores write overlay files until promoted.
func NewBlockStore(disk *Disk, branch string, primary bool) *BlockStore {
	return &BlockStore{
		disk:    disk,
		branch:  branch,
		primary: primary,
		seqs:    make(map[bighash.Hash]uint64),
	}
}

// Branch returns the branch id of the store.
func (s *BlockStore) Branch() string {
	return s.branch
}

// IsPrimary reports whether the store writes primary files.
func (s *BlockStore) IsPrimary() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.primary
}

// Len returns the number of tracked blocks.
func (s *BlockStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.seqs)
}

// Has reports whether the block is tracked.
func (s *BlockStore) Has(hash bighash.Hash) bool {
	_, exists := s.Seq(hash)
	return exists
}

// Seq returns the sequence number of a tracked block.
func (s *BlockStore) Seq(hash bighash.Hash) (uint64, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	seq, exists := s.seqs[hash]
	return seq, exists
}

// Get returns the tracked block with the specified hash. A cache miss or a
// slot holding another block falls back to the block file.
func (s *BlockStore) Get(hash bighash.Hash) (Block, error) {
	seq, exists := s.Seq(hash)
	if !exists {
		return Block{}, fmt.Errorf("%s: %w", hash.Short(), ErrNotFound)
	}

	if b, ok := s.disk.cached(hash); ok {
		return b, nil
	}

	b, err := s.disk.read(s.path(seq))
	if err != nil {
		return Block{}, err
	}

	if b.Hash != hash {
		return Block{}, fmt.Errorf("%w: seq %d holds %s, expected %s", ErrCorrupt, seq, b.Hash.Short(), hash.Short())
	}

	s.disk.cache(b)

	return b, nil
}

// GetSeq returns the block stored for the sequence number.
func (s *BlockStore) GetSeq(seq uint64) (Block, error) {
	b, err := s.disk.read(s.path(seq))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Block{}, fmt.Errorf("seq %d: %w", seq, ErrNotFound)
		}
		return Block{}, err
	}

	s.disk.cache(b)

	return b, nil
}

// Put tracks the block at the sequence number and writes it to disk. An
// invalid block is rejected. A block already tracked at that sequence number
// and present in the cache is not written again.
func (s *BlockStore) Put(block Block, seq uint64) error {
	if !block.IsValid() {
		return reject("block %s is not solved", block.Hash.Short())
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if cur, exists := s.seqs[block.Hash]; exists && cur == seq {
		if _, ok := s.disk.cached(block.Hash); ok {
			return nil
		}
	}

	path := s.disk.secondaryPath(seq, s.branch)
	if s.primary {
		path = s.disk.primaryPath(seq)
	}

	if err := s.disk.write(path, block); err != nil {
		return fmt.Errorf("write block %s: %w", block.Hash.Short(), err)
	}

	s.seqs[block.Hash] = seq
	s.disk.cache(block)

	return nil
}

// Untrack removes the bookkeeping for the block without deleting its file.
func (s *BlockStore) Untrack(hash bighash.Hash) {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.seqs, hash)
	s.disk.evict(hash)
}

// Delete removes the file holding the block and untracks it.
func (s *BlockStore) Delete(hash bighash.Hash) error {
	seq, exists := s.Seq(hash)
	if !exists {
		return fmt.Errorf("%s: %w", hash.Short(), ErrNotFound)
	}

	if err := os.Remove(s.path(seq)); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}

	s.Untrack(hash)

	return nil
}

// Promote moves every overlay file the branch reads to its primary path. Each
// move is a rename so every block file is either at its overlay or primary
// path at any point in time.
func (s *BlockStore) Promote() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, seq := range s.seqs {
		path := s.storedPath(seq)
		if path == s.disk.primaryPath(seq) {
			continue
		}

		if err := os.Rename(path, s.disk.primaryPath(seq)); err != nil {
			return fmt.Errorf("promote seq %d: %w", seq, err)
		}
	}

	s.primary = true
	s.lineage = nil

	return nil
}

// branchTo constructs a non primary store for a new branch tracking the
// blocks of this store up to and including the sequence number.
func (s *BlockStore) branchTo(branch string, last uint64, empty bool) *BlockStore {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ns := NewBlockStore(s.disk, branch, false)
	if empty {
		return ns
	}

	if !s.primary {
		ns.lineage = append([]string{s.branch}, s.lineage...)
	}

	for hash, seq := range s.seqs {
		if seq <= last {
			ns.seqs[hash] = seq
		}
	}

	return ns
}

// track records a block found on disk without rewriting it.
func (s *BlockStore) track(hash bighash.Hash, seq uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seqs[hash] = seq
}

// path resolves the file holding the sequence number.
func (s *BlockStore) path(seq uint64) string {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return s.storedPath(seq)
}

// storedPath returns the overlay file of the branch, or of the branch it
// was forked from, if one exists and the primary file otherwise. The caller
// must hold a lock.
func (s *BlockStore) storedPath(seq uint64) string {
	for _, branch := range append([]string{s.branch}, s.lineage...) {
		secondary := s.disk.secondaryPath(seq, branch)
		if _, err := os.Stat(secondary); err == nil {
			return secondary
		}
	}

	return s.disk.primaryPath(seq)
}
