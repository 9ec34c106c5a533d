package database

import (
	"encoding/json"
	"fmt"
	"sort"
	"sync"

	"github.com/pkg/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// OpenLevelDb opens the leveldb at path. An empty path opens a database in memory.
func OpenLevelDb(path string) (*leveldb.DB, error) {
	if path == "" {
		db, err := leveldb.Open(storage.NewMemStorage(), nil)
		if err != nil {
			return nil, errors.Wrap(err, "fail to open in memory leveldb")
		}
		return db, nil
	}

	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errors.Wrapf(err, "fail to open leveldb at %s", path)
	}

	return db, nil
}

type queueRecord struct {
	Seq  uint64          `json:"seq"`
	Data json.RawMessage `json:"data"`
}

// Queue is a keyed work queue persisted in leveldb. Every mutation is written to leveldb before
// the in-memory view changes, so the leveldb content is the only source of truth and the memory
// view is rebuilt from it by Load.
type Queue[T any] struct {
	db     *leveldb.DB
	prefix string

	lock  sync.RWMutex
	items map[string]*queueRecord
	seq   uint64

	ready     chan struct{}
	readyOnce sync.Once
}

func NewQueue[T any](db *leveldb.DB, chain, kind string) *Queue[T] {
	return &Queue[T]{
		db:     db,
		prefix: fmt.Sprintf("queue-%s-%s-", chain, kind),
		items:  make(map[string]*queueRecord),
		ready:  make(chan struct{}),
	}
}

// Load rehydrates the queue from leveldb and opens the Ready gate.
func (q *Queue[T]) Load() error {
	q.lock.Lock()
	defer q.lock.Unlock()

	iterator := q.db.NewIterator(util.BytesPrefix([]byte(q.prefix)), nil)
	defer iterator.Release()

	for iterator.Next() {
		buf := iterator.Value()
		if len(buf) == 0 {
			continue
		}

		record := &queueRecord{}
		if err := json.Unmarshal(buf, record); err != nil {
			return errors.Wrap(err, "fail to unmarshal queue record")
		}

		key := string(iterator.Key()[len(q.prefix):])
		q.items[key] = record
		if record.Seq >= q.seq {
			q.seq = record.Seq + 1
		}
	}

	if err := iterator.Error(); err != nil {
		return errors.Wrap(err, "fail to iterate queue")
	}

	q.readyOnce.Do(func() { close(q.ready) })
	return nil
}

// Ready is closed once the queue has been loaded from leveldb.
func (q *Queue[T]) Ready() <-chan struct{} {
	return q.ready
}

// Offer inserts or replaces the item with the given key. A replaced item keeps its position.
func (q *Queue[T]) Offer(key string, item *T) error {
	bz, err := json.Marshal(item)
	if err != nil {
		return errors.Wrap(err, "fail to marshal queue item")
	}

	q.lock.Lock()
	defer q.lock.Unlock()

	record := &queueRecord{Data: bz}
	if old, ok := q.items[key]; ok {
		record.Seq = old.Seq
	} else {
		record.Seq = q.seq
		q.seq++
	}

	buf, err := json.Marshal(record)
	if err != nil {
		return errors.Wrap(err, "fail to marshal queue record")
	}
	if err := q.db.Put([]byte(q.prefix+key), buf, nil); err != nil {
		return errors.Wrap(err, "fail to save queue item")
	}

	q.items[key] = record
	return nil
}

// Get returns a copy of the item with the given key or nil if there is none.
func (q *Queue[T]) Get(key string) (*T, error) {
	q.lock.RLock()
	record, ok := q.items[key]
	q.lock.RUnlock()

	if !ok {
		return nil, nil
	}

	return decodeItem[T](record)
}

func (q *Queue[T]) Contains(key string) bool {
	q.lock.RLock()
	defer q.lock.RUnlock()

	_, ok := q.items[key]
	return ok
}

func (q *Queue[T]) Remove(key string) error {
	q.lock.Lock()
	defer q.lock.Unlock()

	if _, ok := q.items[key]; !ok {
		return nil
	}

	if err := q.db.Delete([]byte(q.prefix+key), nil); err != nil {
		return errors.Wrap(err, "fail to delete queue item")
	}

	delete(q.items, key)
	return nil
}

// RemoveIf removes every item matching the predicate and returns how many were removed.
func (q *Queue[T]) RemoveIf(predicate func(item *T) bool) (int, error) {
	keys, items, err := q.snapshot()
	if err != nil {
		return 0, err
	}

	count := 0
	for i, item := range items {
		if !predicate(item) {
			continue
		}
		if err := q.Remove(keys[i]); err != nil {
			return count, err
		}
		count++
	}

	return count, nil
}

// Items returns copies of all items in insertion order.
func (q *Queue[T]) Items() ([]*T, error) {
	_, items, err := q.snapshot()
	return items, err
}

func (q *Queue[T]) Keys() []string {
	keys, _, _ := q.snapshot()
	return keys
}

func (q *Queue[T]) Len() int {
	q.lock.RLock()
	defer q.lock.RUnlock()

	return len(q.items)
}

func (q *Queue[T]) snapshot() ([]string, []*T, error) {
	q.lock.RLock()
	keys := make([]string, 0, len(q.items))
	records := make(map[string]*queueRecord, len(q.items))
	for key, record := range q.items {
		keys = append(keys, key)
		records[key] = record
	}
	q.lock.RUnlock()

	sort.Slice(keys, func(i, j int) bool {
		return records[keys[i]].Seq < records[keys[j]].Seq
	})

	items := make([]*T, 0, len(keys))
	for _, key := range keys {
		item, err := decodeItem[T](records[key])
		if err != nil {
			return nil, nil, err
		}
		items = append(items, item)
	}

	return keys, items, nil
}

func decodeItem[T any](record *queueRecord) (*T, error) {
	item := new(T)
	if err := json.Unmarshal(record.Data, item); err != nil {
		return nil, errors.Wrap(err, "fail to unmarshal queue item")
	}

	return item, nil
}
