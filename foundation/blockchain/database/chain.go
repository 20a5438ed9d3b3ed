package database

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"math"
	"os"
	"path/filepath"
	"sync"

	"github.com/ardanlabs/idchain/foundation/blockchain/bighash"
	"github.com/ardanlabs/idchain/foundation/blockchain/ledger"
	"github.com/ardanlabs/idchain/foundation/blockchain/notify"
	"github.com/google/uuid"
)

// ChainEvent is published when the head of a chain changes.
type ChainEvent struct {
	Head     Block
	Size     uint64
	Replaced bool
}

// Chain is an ordered view over a BlockStore from genesis to a head hash.
// Chains created by forking share the block files of their parent up to the
// fork point.
type Chain struct {
	root   string
	store  *BlockStore
	reward int64
	ev     func(v string, args ...any)

	mu       sync.RWMutex
	head     bighash.Hash
	headTime int64
	size     uint64
	idx      *index
	feed     *notify.Feed[ChainEvent]
}

// Config represents the configuration required to open a chain.
type Config struct {
	DBPath       string
	MiningReward int64
	CacheSlots   int
	EvHandler    func(v string, args ...any)
}

// chainMeta is the content of the chain metadata file.
type chainMeta struct {
	Branch string       `json:"branch"`
	Head   bighash.Hash `json:"head"`
	Size   uint64       `json:"size"`
}

const metaFile = "chain.json"

// Open loads the chain stored under the database path. The tracking map is
// rebuilt by walking back from the recorded head, an interrupted promotion
// is completed and files no chain can reach are removed. A path with no
// chain yields an empty primary chain.
func Open(cfg Config) (*Chain, error) {
	ev := cfg.EvHandler
	if ev == nil {
		ev = func(v string, args ...any) {}
	}

	disk, err := NewDisk(filepath.Join(cfg.DBPath, "blocks"), cfg.CacheSlots)
	if err != nil {
		return nil, err
	}

	c := Chain{
		root:   cfg.DBPath,
		reward: cfg.MiningReward,
		ev:     ev,
	}

	data, err := os.ReadFile(filepath.Join(cfg.DBPath, metaFile))
	switch {
	case errors.Is(err, fs.ErrNotExist):
		c.store = NewBlockStore(disk, uuid.NewString(), true)
		ev("database: Open: new chain: branch[%s]", c.store.Branch())
		return &c, nil

	case err != nil:
		return nil, fmt.Errorf("%w: read chain metadata: %v", ErrCorrupt, err)
	}

	var meta chainMeta
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("%w: decode chain metadata: %v", ErrCorrupt, err)
	}

	c.store = NewBlockStore(disk, meta.Branch, false)
	c.head = meta.Head
	c.size = meta.Size

	ev("database: Open: loading: branch[%s] head[%s] size[%d]", meta.Branch, meta.Head.Short(), meta.Size)

	expected := meta.Head
	for seq := int64(meta.Size) - 1; seq >= 0; seq-- {
		b, err := c.store.GetSeq(uint64(seq))
		if err != nil {
			return nil, fmt.Errorf("%w: load seq %d: %v", ErrCorrupt, seq, err)
		}

		if b.Hash != expected || !b.IsValid() {
			return nil, fmt.Errorf("%w: seq %d holds %s, expected %s", ErrCorrupt, seq, b.Hash.Short(), expected.Short())
		}

		c.store.track(b.Hash, uint64(seq))
		if seq == int64(meta.Size)-1 {
			c.headTime = b.Header.TimeStamp
		}
		expected = b.Header.PrevBlockHash
	}

	if !expected.IsZero() {
		return nil, fmt.Errorf("%w: genesis links to %s", ErrCorrupt, expected.Short())
	}

	if err := c.store.Promote(); err != nil {
		return nil, fmt.Errorf("complete promotion: %w", err)
	}

	removed, err := disk.Sweep(meta.Branch, meta.Size)
	if err != nil {
		return nil, fmt.Errorf("sweep block files: %w", err)
	}
	if removed > 0 {
		ev("database: Open: removed unreachable block files[%d]", removed)
	}

	return &c, nil
}

// =============================================================================

// Branch returns the branch id of the chain.
func (c *Chain) Branch() string {
	return c.store.Branch()
}

// Store returns the block store the chain is a view over.
func (c *Chain) Store() *BlockStore {
	return c.store
}

// HeadHash returns the hash of the head block.
func (c *Chain) HeadHash() bighash.Hash {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.head
}

// Size returns the number of blocks in the chain.
func (c *Chain) Size() uint64 {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return c.size
}

// Head returns the head block.
func (c *Chain) Head() (Block, error) {
	return c.store.Get(c.HeadHash())
}

// Get returns the block with the specified hash if it is part of the chain.
func (c *Chain) Get(hash bighash.Hash) (Block, error) {
	return c.store.Get(hash)
}

// BlockAt returns the block with the specified sequence number.
func (c *Chain) BlockAt(seq uint64) (Block, error) {
	c.mu.RLock()
	size := c.size
	c.mu.RUnlock()

	if seq >= size {
		return Block{}, fmt.Errorf("seq %d of %d: %w", seq, size, ErrNotFound)
	}

	return c.store.GetSeq(seq)
}

// Blocks returns the blocks from one sequence number to another inclusive,
// clamped to the chain.
func (c *Chain) Blocks(from uint64, to uint64) ([]Block, error) {
	size := c.Size()
	if size == 0 || from >= size {
		return nil, nil
	}
	if to >= size {
		to = size - 1
	}

	var blocks []Block
	for seq := from; seq <= to; seq++ {
		b, err := c.store.GetSeq(seq)
		if err != nil {
			return nil, err
		}
		blocks = append(blocks, b)
	}

	return blocks, nil
}

// BlocksAfter returns up to max blocks following the specified block, oldest
// first. A zero hash starts at genesis. An unknown hash returns no blocks.
func (c *Chain) BlocksAfter(before bighash.Hash, max int) ([]Block, error) {
	if max <= 0 {
		return nil, nil
	}

	from := uint64(0)
	if !before.IsZero() {
		seq, exists := c.store.Seq(before)
		if !exists {
			return nil, nil
		}
		from = seq + 1
	}

	return c.Blocks(from, from+uint64(max)-1)
}

// SetFeed attaches the feed head changes are published to.
func (c *Chain) SetFeed(feed *notify.Feed[ChainEvent]) {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.feed = feed
}

// =============================================================================

// IsValid walks the chain from head to genesis. The chain is invalid if
// genesis doesn't link to the zero hash, a block is not solved, timestamps
// increase walking backward, or an account balance drops below zero at any
// point of the history.
func (c *Chain) IsValid() bool {
	c.mu.RLock()
	head, size := c.head, c.size
	c.mu.RUnlock()

	if size == 0 {
		return false
	}

	effects := make([]ledger.Effects, 0, size)
	lastTime := int64(1<<63 - 1)

	hash := head
	for !hash.IsZero() {
		b, err := c.store.Get(hash)
		if err != nil {
			c.ev("database: IsValid: %s: ERROR: %s", hash.Short(), err)
			return false
		}

		if !b.IsValid() || b.Header.TimeStamp > lastTime {
			return false
		}

		eff, ok := b.CheckedEffects()
		if !ok {
			return false
		}

		lastTime = b.Header.TimeStamp
		effects = append(effects, eff)
		hash = b.Header.PrevBlockHash
	}

	if uint64(len(effects)) != size {
		return false
	}

	balances := make(map[ledger.Account]int64)
	for i := len(effects) - 1; i >= 0; i-- {
		for account, value := range effects[i] {
			balance, ok := ledger.AddDelta(balances[account], value)
			if !ok || balance < 0 || balance > ledger.MaxValue {
				return false
			}
			balances[account] = balance
		}
	}

	return true
}

// PushBlock adds the block as the new head. The block must be solved, link
// to the current head, carry a correct coinbase and only spend balances the
// chain already holds. Subscribers are notified asynchronously.
func (c *Chain) PushBlock(b Block) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !b.IsValid() {
		return reject("block %s is not solved", b.Hash.Short())
	}

	if b.Header.PrevBlockHash != c.head {
		return fmt.Errorf("%w: %w: block %s links to %s, head is %s", ErrRejected, ErrUnlinked, b.Hash.Short(), b.Header.PrevBlockHash.Short(), c.head.Short())
	}

	if b.Trans == nil || !b.Trans.IsComplete() || b.Trans.RootHash() != b.Header.MerkleRoot {
		return reject("block %s merkle root does not match transactions", b.Hash.Short())
	}

	if c.size > 0 && b.Header.TimeStamp < c.headTime {
		return reject("block %s timestamp %d is before head %d", b.Hash.Short(), b.Header.TimeStamp, c.headTime)
	}

	for _, tx := range b.Values() {
		if !tx.IsValid() {
			return reject("block %s carries invalid %s transaction %d", b.Hash.Short(), tx.Kind(), tx.ID())
		}
	}

	// The genesis block carries the initial allocation instead of a reward.
	switch c.size {
	case 0:
		if _, ok := b.Values()[0].(ledger.Coinbase); !ok {
			return reject("genesis block %s does not start with a coinbase", b.Hash.Short())
		}

	default:
		if !b.VerifyCoinbase(c.reward) {
			return reject("block %s coinbase does not pay reward plus fees", b.Hash.Short())
		}
	}

	if err := c.verifyEffects(b); err != nil {
		return err
	}

	if err := c.store.Put(b, c.size); err != nil {
		return err
	}

	c.head = b.Hash
	c.headTime = b.Header.TimeStamp
	c.size++
	c.idx.apply(b)

	c.ev("database: PushBlock: branch[%s] seq[%d] %s", c.store.Branch(), c.size-1, b)

	if c.feed != nil {
		c.feed.Publish(ChainEvent{Head: b, Size: c.size})
	}

	return nil
}

// verifyEffects checks every account the block takes value from holds
// enough balance and that no transaction of the block is already part of
// the chain. The caller must hold the write lock.
func (c *Chain) verifyEffects(b Block) error {
	idx, err := c.index()
	if err != nil {
		return err
	}

	seen := make(map[bighash.Hash]struct{})
	for _, tx := range b.Values() {
		h := tx.Hash()
		if _, exists := idx.txs[h]; exists {
			return reject("transaction %s is already in the chain", h.Short())
		}
		if _, exists := seen[h]; exists {
			return reject("transaction %s appears twice in block", h.Short())
		}
		seen[h] = struct{}{}
	}

	effects, ok := b.CheckedEffects()
	if !ok {
		return reject("block %s effects overflow", b.Hash.Short())
	}

	for account, value := range effects {
		balance, ok := ledger.AddDelta(idx.balances[account], value)
		switch {
		case !ok || balance > ledger.MaxValue:
			return reject("account %s balance %d can't take %d", account, idx.balances[account], value)
		case balance < 0:
			return reject("account %s spends %d with balance %d", account, -value, idx.balances[account])
		}
	}

	return nil
}

// Fork creates a new chain with a fresh branch id whose head is the
// specified block. Blocks after the fork point are not tracked by the new
// chain, so it can diverge without touching this chain's files. A zero hash
// forks an empty chain.
func (c *Chain) Fork(forkHash bighash.Hash) (*Chain, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	nc := Chain{
		root:   c.root,
		reward: c.reward,
		ev:     c.ev,
	}

	branch := uuid.NewString()

	if forkHash.IsZero() {
		nc.store = c.store.branchTo(branch, 0, true)
		c.ev("database: Fork: branch[%s] from genesis", branch)
		return &nc, nil
	}

	seq, exists := c.store.Seq(forkHash)
	if !exists {
		return nil, fmt.Errorf("fork at %s: %w", forkHash.Short(), ErrNotFound)
	}

	b, err := c.store.Get(forkHash)
	if err != nil {
		return nil, err
	}

	nc.store = c.store.branchTo(branch, seq, false)
	nc.head = forkHash
	nc.headTime = b.Header.TimeStamp
	nc.size = seq + 1

	c.ev("database: Fork: branch[%s] from[%s] at seq[%d]", branch, c.store.Branch(), seq)

	return &nc, nil
}

// Trace returns the hashes from head back to genesis.
func (c *Chain) Trace() ([]bighash.Hash, error) {
	c.mu.RLock()
	hash, size := c.head, c.size
	c.mu.RUnlock()

	trace := make([]bighash.Hash, 0, size)
	for !hash.IsZero() {
		b, err := c.store.Get(hash)
		if err != nil {
			return nil, err
		}
		trace = append(trace, hash)
		hash = b.Header.PrevBlockHash
	}

	return trace, nil
}

// FirstCommonBlock returns the first hash of the trace this chain also
// holds, or the zero hash when nothing is shared.
func (c *Chain) FirstCommonBlock(trace []bighash.Hash) bighash.Hash {
	for _, hash := range trace {
		if c.store.Has(hash) {
			return hash
		}
	}

	return bighash.Zero
}

// TotalDifficulty returns the sum of the difficulty of every block.
func (c *Chain) TotalDifficulty() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.index()
	if err != nil {
		c.ev("database: TotalDifficulty: ERROR: %s", err)
		return 0
	}

	return idx.work
}

// Delete removes every block from the head back to, but not including, the
// stop block. The stop block becomes the new head.
func (c *Chain) Delete(stopHash bighash.Hash) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if !stopHash.IsZero() && !c.store.Has(stopHash) {
		return fmt.Errorf("delete to %s: %w", stopHash.Short(), ErrNotFound)
	}

	for c.head != stopHash && !c.head.IsZero() {
		b, err := c.store.Get(c.head)
		if err != nil {
			return err
		}

		if err := c.store.Delete(c.head); err != nil {
			return err
		}

		c.ev("database: Delete: branch[%s] seq[%d] blk[%s]", c.store.Branch(), c.size-1, c.head.Short())

		c.head = b.Header.PrevBlockHash
		c.size--
	}

	c.headTime = 0
	if !c.head.IsZero() {
		b, err := c.store.Get(c.head)
		if err != nil {
			return err
		}
		c.headTime = b.Header.TimeStamp
	}

	c.idx = nil

	return nil
}

// Promote turns the overlay files of the chain into the primary files.
func (c *Chain) Promote() error {
	return c.store.Promote()
}

// Save atomically writes the chain metadata so the chain can be reopened.
func (c *Chain) Save() error {
	c.mu.RLock()
	meta := chainMeta{
		Branch: c.store.Branch(),
		Head:   c.head,
		Size:   c.size,
	}
	c.mu.RUnlock()

	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}

	path := filepath.Join(c.root, metaFile)
	if err := os.WriteFile(path+".tmp", data, 0600); err != nil {
		return err
	}

	return os.Rename(path+".tmp", path)
}

// Wait blocks until every notification published by the chain is delivered.
func (c *Chain) Wait() {
	c.mu.RLock()
	feed := c.feed
	c.mu.RUnlock()

	if feed != nil {
		feed.Wait()
	}
}

// =============================================================================

// Balance returns the balance of the account at the head of the chain.
func (c *Chain) Balance(account ledger.Account) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.index()
	if err != nil {
		return 0, err
	}

	return idx.balances[account.Canonical()], nil
}

// Balances returns a copy of every account balance.
func (c *Chain) Balances() (map[ledger.Account]int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.index()
	if err != nil {
		return nil, err
	}

	cpy := make(map[ledger.Account]int64, len(idx.balances))
	for account, balance := range idx.balances {
		cpy[account] = balance
	}
	return cpy, nil
}

// Contains reports whether the transaction is part of the chain.
func (c *Chain) Contains(txHash bighash.Hash) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.index()
	if err != nil {
		return false
	}

	_, exists := idx.txs[txHash]
	return exists
}

// Identities returns every identity entry registering the name.
func (c *Chain) Identities(name string) ([]ledger.IdentityEntry, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.index()
	if err != nil {
		return nil, err
	}

	return append([]ledger.IdentityEntry(nil), idx.names[name]...), nil
}

// Identity returns the first identity entry registered by the account.
func (c *Chain) Identity(account ledger.Account) (ledger.IdentityEntry, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	idx, err := c.index()
	if err != nil {
		return ledger.IdentityEntry{}, false
	}

	ie, exists := idx.identities[account.Canonical()]
	return ie, exists
}

// index returns the balance and transaction index, building it from genesis
// the first time it is needed. The caller must hold the write lock.
func (c *Chain) index() (*index, error) {
	if c.idx != nil {
		return c.idx, nil
	}

	var blocks []Block
	for hash := c.head; !hash.IsZero(); {
		b, err := c.store.Get(hash)
		if err != nil {
			return nil, fmt.Errorf("build index: %w", err)
		}
		blocks = append(blocks, b)
		hash = b.Header.PrevBlockHash
	}

	idx := newIndex()
	for i := len(blocks) - 1; i >= 0; i-- {
		idx.apply(blocks[i])
	}

	c.idx = idx

	return idx, nil
}

// =============================================================================

// index is the incrementally maintained state derived from the blocks of a
// chain: balances, transaction hashes, identities and total difficulty.
type index struct {
	balances   map[ledger.Account]int64
	txs        map[bighash.Hash]struct{}
	names      map[string][]ledger.IdentityEntry
	identities map[ledger.Account]ledger.IdentityEntry
	work       float64
}

func newIndex() *index {
	return &index{
		balances:   make(map[ledger.Account]int64),
		txs:        make(map[bighash.Hash]struct{}),
		names:      make(map[string][]ledger.IdentityEntry),
		identities: make(map[ledger.Account]ledger.IdentityEntry),
	}
}

// apply adds the block to the index. A nil index is left alone so it can be
// built lazily later.
func (idx *index) apply(b Block) {
	if idx == nil {
		return
	}

	idx.work += b.Difficulty()

	for account, value := range b.Effects() {
		balance, ok := ledger.AddDelta(idx.balances[account], value)
		if !ok {
			balance = math.MaxInt64
			if value < 0 {
				balance = math.MinInt64
			}
		}
		idx.balances[account] = balance
	}

	for _, tx := range b.Values() {
		idx.txs[tx.Hash()] = struct{}{}

		if ie, ok := tx.(ledger.IdentityEntry); ok {
			idx.names[ie.Name] = append(idx.names[ie.Name], ie)
			if _, exists := idx.identities[ie.Account.Canonical()]; !exists {
				idx.identities[ie.Account.Canonical()] = ie
			}
		}
	}
}
