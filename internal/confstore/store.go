// Package confstore persists the latest configuration frame of every ID code in pebble,
// with an LRU of decoded frames in front of it.
package confstore

import (
	"encoding/binary"
	"path/filepath"

	"github.com/cockroachdb/pebble"
	"github.com/gridwatch/pmugate/pkg/pmulog"
	"github.com/gridwatch/pmugate/pkg/pmuproto"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

// ErrNotFound no configuration is stored for the ID code.
var ErrNotFound = errors.New("configuration not found")

const keyPrefix byte = 'c'

type Options struct {
	DataDir   string
	CacheSize int
	Sync      bool // fsync writes made through Save
}

func NewOptions() *Options {
	return &Options{
		CacheSize: 256,
		Sync:      true,
	}
}

// Store implements pmuproto.ConfigurationStore. Safe for concurrent use.
type Store struct {
	pmulog.Log
	opts  *Options
	db    *pebble.DB
	wo    *pebble.WriteOptions
	cache *lru.Cache[uint16, *pmuproto.ConfigurationFrame]
}

func New(opts *Options) *Store {
	size := opts.CacheSize
	if size <= 0 {
		size = 256
	}
	cache, err := lru.New[uint16, *pmuproto.ConfigurationFrame](size)
	if err != nil {
		panic(err)
	}
	wo := pebble.NoSync
	if opts.Sync {
		wo = pebble.Sync
	}
	return &Store{
		Log:   pmulog.NewPmuLog("ConfStore"),
		opts:  opts,
		wo:    wo,
		cache: cache,
	}
}

func (s *Store) Open() error {
	db, err := pebble.Open(filepath.Join(s.opts.DataDir, "configurations"), &pebble.Options{
		FormatMajorVersion: pebble.FormatNewest,
	})
	if err != nil {
		return errors.Wrap(err, "open configuration store")
	}
	s.db = db
	return nil
}

func (s *Store) Close() error {
	s.cache.Purge()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func newKey(idCode uint16) []byte {
	key := make([]byte, 3)
	key[0] = keyPrefix
	binary.BigEndian.PutUint16(key[1:], idCode)
	return key
}

// Configuration returns the stored frame for idCode, loading it from disk on a cache miss.
func (s *Store) Configuration(idCode uint16) (*pmuproto.ConfigurationFrame, bool) {
	if cfg, ok := s.cache.Get(idCode); ok {
		return cfg, true
	}
	data, err := s.Raw(idCode)
	if err != nil {
		if !errors.Is(err, ErrNotFound) {
			s.Error("load configuration failed", zap.Uint16("idcode", idCode), zap.Error(err))
		}
		return nil, false
	}
	cfg, err := decode(data)
	if err != nil {
		s.Error("stored configuration is unreadable", zap.Uint16("idcode", idCode), zap.Error(err))
		return nil, false
	}
	s.cache.Add(idCode, cfg)
	return cfg, true
}

// StoreConfiguration composes cfg and writes it, replacing any earlier frame for the ID code.
// It runs on the ingest event loop for every configuration a device sends, so the write
// is not synced. A device resends its configuration after a restart.
func (s *Store) StoreConfiguration(cfg *pmuproto.ConfigurationFrame) error {
	return s.set(cfg, s.writeOptions(false))
}

// Save is StoreConfiguration for operator supplied frames, synced when Options.Sync is set.
func (s *Store) Save(cfg *pmuproto.ConfigurationFrame) error {
	return s.set(cfg, s.writeOptions(true))
}

func (s *Store) writeOptions(durable bool) *pebble.WriteOptions {
	if durable {
		return s.wo
	}
	return pebble.NoSync
}

func (s *Store) set(cfg *pmuproto.ConfigurationFrame, wo *pebble.WriteOptions) error {
	data, err := pmuproto.ComposeFrame(cfg)
	if err != nil {
		return err
	}
	if err := s.db.Set(newKey(cfg.IDCode), data, wo); err != nil {
		return errors.Wrapf(err, "store configuration %d", cfg.IDCode)
	}
	s.cache.Add(cfg.IDCode, cfg)
	return nil
}

// Raw returns the stored wire bytes for idCode.
func (s *Store) Raw(idCode uint16) ([]byte, error) {
	value, closer, err := s.db.Get(newKey(idCode))
	if err != nil {
		if err == pebble.ErrNotFound {
			return nil, ErrNotFound
		}
		return nil, err
	}
	defer closer.Close()
	return append([]byte(nil), value...), nil
}

// Delete Delete
func (s *Store) Delete(idCode uint16) error {
	if _, err := s.Raw(idCode); err != nil {
		return err
	}
	s.cache.Remove(idCode)
	return s.db.Delete(newKey(idCode), s.wo)
}

// List returns every stored frame ordered by ID code.
func (s *Store) List() ([]*pmuproto.ConfigurationFrame, error) {
	frames := make([]*pmuproto.ConfigurationFrame, 0)
	err := s.iterate(func(idCode uint16, value []byte) bool {
		if cfg, ok := s.cache.Peek(idCode); ok {
			frames = append(frames, cfg)
			return true
		}
		cfg, err := decode(value)
		if err != nil {
			s.Warn("skipping unreadable configuration", zap.Uint16("idcode", idCode), zap.Error(err))
			return true
		}
		frames = append(frames, cfg)
		return true
	})
	return frames, err
}

// Count Count
func (s *Store) Count() (int, error) {
	n := 0
	err := s.iterate(func(uint16, []byte) bool {
		n++
		return true
	})
	return n, err
}

func (s *Store) iterate(fn func(idCode uint16, value []byte) bool) error {
	iter := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{keyPrefix},
		UpperBound: []byte{keyPrefix + 1},
	})
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := iter.Key()
		if len(key) != 3 {
			continue
		}
		if !fn(binary.BigEndian.Uint16(key[1:]), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

func decode(data []byte) (*pmuproto.ConfigurationFrame, error) {
	frame, err := pmuproto.ParseFrame(data)
	if err != nil {
		return nil, err
	}
	cfg, ok := frame.(*pmuproto.ConfigurationFrame)
	if !ok {
		return nil, errors.Errorf("stored frame is %s", frame.GetFrameType())
	}
	return cfg, nil
}
