package storage

import (
	"fmt"

	"github.com/syndtr/goleveldb/leveldb"
	leveldbstorage "github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/EdHastingsCasperAssociation/casper-node-sub004/types"
)

// LevelDBGlobalState persists state snapshots in LevelDB. Every pair is
// stored under root || serializedKey, so a snapshot is the prefix range of
// its root. LevelDB handles its own synchronization.
type LevelDBGlobalState struct {
	db *leveldb.DB
}

// NewLevelDBGlobalState opens or creates a database at path. An empty path
// uses in-memory backing storage.
func NewLevelDBGlobalState(path string) (*LevelDBGlobalState, error) {
	var db *leveldb.DB
	var err error
	if path == "" {
		db, err = leveldb.Open(leveldbstorage.NewMemStorage(), nil)
	} else {
		db, err = leveldb.OpenFile(path, nil)
	}
	if err != nil {
		return nil, fmt.Errorf("open database at %s: %w", path, err)
	}
	return &LevelDBGlobalState{db: db}, nil
}

func (s *LevelDBGlobalState) Close() error { return s.db.Close() }

func (s *LevelDBGlobalState) snapshot(root types.Digest) (map[string][]byte, error) {
	pairs := make(map[string][]byte)
	iter := s.db.NewIterator(util.BytesPrefix(root.Bytes()), nil)
	defer iter.Release()
	for iter.Next() {
		key := iter.Key()[types.DigestLength:]
		value := make([]byte, len(iter.Value()))
		copy(value, iter.Value())
		pairs[string(key)] = value
	}
	if err := iter.Error(); err != nil {
		return nil, fmt.Errorf("snapshot %s: %w", root, err)
	}
	return pairs, nil
}

type levelDBReader struct {
	state *LevelDBGlobalState
	root  types.Digest
}

func (r *levelDBReader) Read(key types.Key) (*types.StoredValue, error) {
	dbKey := append(r.root.Bytes(), key.Serialize()...)
	raw, err := r.state.db.Get(dbKey, nil)
	if err == leveldb.ErrNotFound {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", key, err)
	}
	return decodeStoredValue(raw)
}

func (s *LevelDBGlobalState) TrackingCopyAt(root types.Digest) (*TrackingCopy, error) {
	return NewTrackingCopy(&levelDBReader{state: s, root: root}), nil
}

func (s *LevelDBGlobalState) CommitEffects(root types.Digest, effects *types.Effects) (types.Digest, error) {
	pairs, err := s.snapshot(root)
	if err != nil {
		return types.Digest{}, err
	}
	if err := applyEffects(pairs, effects); err != nil {
		return types.Digest{}, err
	}
	newRoot := stateRoot(pairs)
	batch := new(leveldb.Batch)
	for k, v := range pairs {
		batch.Put(append(newRoot.Bytes(), []byte(k)...), v)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return types.Digest{}, fmt.Errorf("commit %s: %w", newRoot, err)
	}
	return newRoot, nil
}

// WriteGenesis seeds a snapshot directly and returns its root.
func (s *LevelDBGlobalState) WriteGenesis(values map[string]types.StoredValue) (types.Digest, error) {
	pairs := make(map[string][]byte, len(values))
	for k, sv := range values {
		raw, err := encodeStoredValue(&sv)
		if err != nil {
			return types.Digest{}, err
		}
		pairs[k] = raw
	}
	root := stateRoot(pairs)
	batch := new(leveldb.Batch)
	for k, v := range pairs {
		batch.Put(append(root.Bytes(), []byte(k)...), v)
	}
	if err := s.db.Write(batch, nil); err != nil {
		return types.Digest{}, err
	}
	return root, nil
}
