package chain

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/Klingon-tech/klingnet-snode/internal/storage"
	"github.com/Klingon-tech/klingnet-snode/pkg/block"
	"github.com/Klingon-tech/klingnet-snode/pkg/tx"
	"github.com/Klingon-tech/klingnet-snode/pkg/types"
)

// Key prefixes and state keys for the block store.
var (
	prefixBlock  = []byte("b/") // b/<hash(32)> -> block JSON
	prefixHeight = []byte("h/") // h/<height(8)> -> hash(32)
	prefixTx     = []byte("t/") // t/<txhash(32)> -> transaction JSON
	keyTip       = []byte("s/tip")
)

// BlockStore persists main-chain blocks, their transactions and the tip to a
// storage.DB. Multi-key updates go through a batch when the DB supports one.
type BlockStore struct {
	db storage.DB
}

// NewBlockStore creates a block store backed by the given database.
func NewBlockStore(db storage.DB) *BlockStore {
	return &BlockStore{db: db}
}

func (bs *BlockStore) newBatch() storage.Batch {
	if b, ok := bs.db.(storage.Batcher); ok {
		return b.NewBatch()
	}
	return &directBatch{db: bs.db}
}

// PutBlock stores a block at height together with its transactions and
// moves the tip to it.
func (bs *BlockStore) PutBlock(blk *block.Block, height uint64, txs []*tx.Transaction) error {
	data, err := json.Marshal(blk)
	if err != nil {
		return fmt.Errorf("block marshal: %w", err)
	}
	hash := blk.Hash()

	batch := bs.newBatch()
	if err := batch.Put(blockKey(hash), data); err != nil {
		return fmt.Errorf("block put: %w", err)
	}
	if err := batch.Put(heightKey(height), hash[:]); err != nil {
		return fmt.Errorf("height index put: %w", err)
	}
	for _, t := range txs {
		txData, err := json.Marshal(t)
		if err != nil {
			return fmt.Errorf("tx marshal: %w", err)
		}
		if err := batch.Put(txKey(t.Hash()), txData); err != nil {
			return fmt.Errorf("tx put %s: %w", t.Hash(), err)
		}
	}
	if err := batch.Put(keyTip, encodeTip(hash, height+1)); err != nil {
		return fmt.Errorf("set tip: %w", err)
	}
	return batch.Commit()
}

// RemoveTop deletes the block at height (which must be the tip) and its
// transactions, and moves the tip to newTip.
func (bs *BlockStore) RemoveTop(height uint64, newTip types.Hash) error {
	blk, err := bs.GetBlockByHeight(height)
	if err != nil {
		return err
	}
	batch := bs.newBatch()
	for _, h := range blk.TxHashes {
		if err := batch.Delete(txKey(h)); err != nil {
			return err
		}
	}
	if err := batch.Delete(blockKey(blk.Hash())); err != nil {
		return err
	}
	if err := batch.Delete(heightKey(height)); err != nil {
		return err
	}
	if err := batch.Put(keyTip, encodeTip(newTip, height)); err != nil {
		return err
	}
	return batch.Commit()
}

// GetBlock retrieves a block by its hash.
func (bs *BlockStore) GetBlock(hash types.Hash) (*block.Block, error) {
	data, err := bs.db.Get(blockKey(hash))
	if err != nil {
		return nil, fmt.Errorf("block get %s: %w", hash, err)
	}
	var blk block.Block
	if err := json.Unmarshal(data, &blk); err != nil {
		return nil, fmt.Errorf("block unmarshal: %w", err)
	}
	return &blk, nil
}

// GetBlockByHeight retrieves a main-chain block by its height.
func (bs *BlockStore) GetBlockByHeight(height uint64) (*block.Block, error) {
	hashBytes, err := bs.db.Get(heightKey(height))
	if err != nil {
		return nil, fmt.Errorf("height index get %d: %w", height, err)
	}
	if len(hashBytes) != types.HashSize {
		return nil, fmt.Errorf("corrupt height index: got %d bytes, want %d", len(hashBytes), types.HashSize)
	}
	var hash types.Hash
	copy(hash[:], hashBytes)
	return bs.GetBlock(hash)
}

// HasBlock checks if a block exists by hash.
func (bs *BlockStore) HasBlock(hash types.Hash) (bool, error) {
	return bs.db.Has(blockKey(hash))
}

// GetTx retrieves a stored transaction. Returns storage.ErrNotFound (wrapped)
// if it is unknown.
func (bs *BlockStore) GetTx(hash types.Hash) (*tx.Transaction, error) {
	data, err := bs.db.Get(txKey(hash))
	if err != nil {
		return nil, fmt.Errorf("tx get %s: %w", hash, err)
	}
	var t tx.Transaction
	if err := json.Unmarshal(data, &t); err != nil {
		return nil, fmt.Errorf("tx unmarshal %s: %w", hash, err)
	}
	return &t, nil
}

// GetTip returns the tip hash and block count. Returns zero values if no
// tip is set (fresh store).
func (bs *BlockStore) GetTip() (types.Hash, uint64, error) {
	data, err := bs.db.Get(keyTip)
	if errors.Is(err, storage.ErrNotFound) {
		return types.Hash{}, 0, nil
	}
	if err != nil {
		return types.Hash{}, 0, fmt.Errorf("tip get: %w", err)
	}
	if len(data) != types.HashSize+8 {
		return types.Hash{}, 0, fmt.Errorf("corrupt tip: got %d bytes", len(data))
	}
	var hash types.Hash
	copy(hash[:], data)
	return hash, binary.BigEndian.Uint64(data[types.HashSize:]), nil
}

func encodeTip(hash types.Hash, height uint64) []byte {
	buf := make([]byte, 0, types.HashSize+8)
	buf = append(buf, hash[:]...)
	return binary.BigEndian.AppendUint64(buf, height)
}

func blockKey(hash types.Hash) []byte {
	return append(append([]byte(nil), prefixBlock...), hash[:]...)
}

func heightKey(height uint64) []byte {
	return binary.BigEndian.AppendUint64(append([]byte(nil), prefixHeight...), height)
}

func txKey(hash types.Hash) []byte {
	return append(append([]byte(nil), prefixTx...), hash[:]...)
}

// directBatch applies writes immediately for databases without batches.
type directBatch struct {
	db storage.DB
}

func (d *directBatch) Put(key, value []byte) error {
	return d.db.Put(key, value)
}

func (d *directBatch) Delete(key []byte) error {
	return d.db.Delete(key)
}

func (d *directBatch) Commit() error {
	return nil
}
