package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"math"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"go.uber.org/zap"

	"github.com/EggysOnCode/stackex/core/engine"
)

// KvDB is the market-data mirror: a pebble keyspace of executed trades,
// fed asynchronously by the event consumer. It is never authoritative;
// the tape endpoint reads Postgres, this mirror serves downstream
// market-data consumers without touching the trading database.
type KvDB struct {
	db     *pebble.DB
	logger *zap.Logger
}

// Validation errors
var (
	ErrInvalidTicker  = errors.New("invalid ticker")
	ErrInvalidTrade   = errors.New("invalid trade data")
	ErrDatabaseClosed = errors.New("database is closed")
)

// NewKvDB opens the mirror at path. An empty path keeps the whole
// keyspace in memory, which is what the tests use.
func NewKvDB(path string, logger *zap.Logger) (*KvDB, error) {
	opts := &pebble.Options{}
	if path == "" {
		path = "stackex-mem"
		opts.FS = vfs.NewMem()
	}
	db, err := pebble.Open(path, opts)
	if err != nil {
		logger.Error("failed to open KVDB", zap.String("path", path), zap.Error(err))
		return nil, err
	}
	logger.Info("KVDB initialized", zap.String("path", path))
	return &KvDB{db: db, logger: logger}, nil
}

func (kv *KvDB) Close() error {
	if kv.db == nil {
		kv.logger.Warn("attempted to close already closed KVDB")
		return ErrDatabaseClosed
	}
	kv.logger.Info("closing KVDB")
	err := kv.db.Close()
	kv.db = nil
	return err
}

// PutTrade mirrors one executed trade. Keys embed the inverted sequence
// number so an ascending scan yields newest-first.
func (kv *KvDB) PutTrade(t *engine.Trade) error {
	if kv.db == nil {
		return ErrDatabaseClosed
	}
	if err := validateTrade(t); err != nil {
		return err
	}

	data, err := json.Marshal(t)
	if err != nil {
		return err
	}
	return kv.db.Set(tradeKey(t.Ticker, t.Seq), data, pebble.Sync)
}

// RecentTrades returns up to limit mirrored trades of one ticker,
// newest first.
func (kv *KvDB) RecentTrades(ticker string, limit int) ([]engine.Trade, error) {
	if kv.db == nil {
		return nil, ErrDatabaseClosed
	}
	if !engine.ValidTicker(ticker) {
		return nil, ErrInvalidTicker
	}

	prefix := []byte(fmt.Sprintf("trade/%s/", ticker))
	iter, err := kv.db.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: append(append([]byte(nil), prefix...), 0xff),
	})
	if err != nil {
		return nil, err
	}
	defer iter.Close()

	var out []engine.Trade
	for iter.First(); iter.Valid() && len(out) < limit; iter.Next() {
		var t engine.Trade
		if err := json.Unmarshal(iter.Value(), &t); err != nil {
			kv.logger.Warn("skipping undecodable mirrored trade", zap.Error(err))
			continue
		}
		out = append(out, t)
	}
	return out, iter.Error()
}

func tradeKey(ticker string, seq int64) []byte {
	key := make([]byte, 0, len(ticker)+16)
	key = append(key, []byte(fmt.Sprintf("trade/%s/", ticker))...)
	var seqBuf [8]byte
	binary.BigEndian.PutUint64(seqBuf[:], uint64(math.MaxInt64-seq))
	return append(key, seqBuf[:]...)
}

func validateTrade(t *engine.Trade) error {
	if t == nil {
		return ErrInvalidTrade
	}
	if !engine.ValidTicker(t.Ticker) {
		return ErrInvalidTicker
	}
	if t.Quantity <= 0 || t.Price <= 0 || t.Seq <= 0 {
		return ErrInvalidTrade
	}
	return nil
}
