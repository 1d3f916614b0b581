// Package storage persists margin accounts, pools and active liquidations in
// a single bbolt database. Payloads are JSON; every mutation runs inside one
// bolt transaction so concurrent gateway requests never interleave partial
// state.
package storage

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"time"

	bolt "go.etcd.io/bbolt"

	"margind/core/types"
	"margind/native/margin"
	"margind/native/marginpool"
)

var (
	bucketAccounts     = []byte("accounts")
	bucketPools        = []byte("pools")
	bucketLiquidations = []byte("liquidations")
	bucketBalances     = []byte("balances")

	// ErrNotFound is returned when a record does not exist.
	ErrNotFound = errors.New("storage: record not found")
)

// Store is the bbolt-backed persistence layer.
type Store struct {
	db *bolt.DB
}

// LiquidationRecord indexes an in-progress liquidation by account, so active
// liquidations can be listed without scanning every account.
type LiquidationRecord struct {
	Account    types.Address `json:"account"`
	Liquidator types.Address `json:"liquidator"`
	StartTime  int64         `json:"startTime"`
}

// NewStore opens (and migrates) the database at path.
func NewStore(path string, options *bolt.Options) (*Store, error) {
	if options == nil {
		options = &bolt.Options{Timeout: time.Second}
	} else if options.Timeout == 0 {
		options.Timeout = time.Second
	}
	db, err := bolt.Open(path, 0o600, options)
	if err != nil {
		return nil, err
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		for _, bucket := range [][]byte{bucketAccounts, bucketPools, bucketLiquidations, bucketBalances} {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db}, nil
}

// Close releases the underlying database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// PutAccount writes the account keyed by its derived address.
func (s *Store) PutAccount(acct *margin.Account) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketAccounts), acct.Address.Bytes(), acct)
	})
}

// GetAccount fetches an account snapshot.
func (s *Store) GetAccount(address types.Address) (*margin.Account, error) {
	var acct margin.Account
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketAccounts), address.Bytes(), &acct)
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// MutateAccount loads the account, applies fn and writes the result back in
// a single transaction. Errors from fn abort the write and pass through.
func (s *Store) MutateAccount(address types.Address, fn func(*margin.Account) error) (*margin.Account, error) {
	var acct margin.Account
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketAccounts)
		if err := getJSON(bucket, address.Bytes(), &acct); err != nil {
			return err
		}
		if err := fn(&acct); err != nil {
			return err
		}
		return putJSON(bucket, address.Bytes(), &acct)
	})
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// DeleteAccount removes an account. Deleting an absent account is not an
// error.
func (s *Store) DeleteAccount(address types.Address) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).Delete(address.Bytes())
	})
}

// ForEachAccount streams every stored account. Returning an error from fn
// stops the scan.
func (s *Store) ForEachAccount(fn func(*margin.Account) error) error {
	return s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketAccounts).ForEach(func(_, raw []byte) error {
			var acct margin.Account
			if err := json.Unmarshal(raw, &acct); err != nil {
				return err
			}
			return fn(&acct)
		})
	})
}

// PutPool writes the pool keyed by its token mint.
func (s *Store) PutPool(pool *marginpool.Pool) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketPools), pool.TokenMint.Bytes(), pool)
	})
}

// GetPool fetches a pool snapshot by token mint.
func (s *Store) GetPool(tokenMint types.Address) (*marginpool.Pool, error) {
	var pool marginpool.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketPools), tokenMint.Bytes(), &pool)
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// MutatePool loads the pool, applies fn and writes the result back in a
// single transaction.
func (s *Store) MutatePool(tokenMint types.Address, fn func(*marginpool.Pool) error) (*marginpool.Pool, error) {
	var pool marginpool.Pool
	err := s.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(bucketPools)
		if err := getJSON(bucket, tokenMint.Bytes(), &pool); err != nil {
			return err
		}
		if err := fn(&pool); err != nil {
			return err
		}
		return putJSON(bucket, tokenMint.Bytes(), &pool)
	})
	if err != nil {
		return nil, err
	}
	return &pool, nil
}

// ListPools returns every stored pool ordered by token mint.
func (s *Store) ListPools() ([]*marginpool.Pool, error) {
	var pools []*marginpool.Pool
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketPools).ForEach(func(_, raw []byte) error {
			var pool marginpool.Pool
			if err := json.Unmarshal(raw, &pool); err != nil {
				return err
			}
			pools = append(pools, &pool)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return pools, nil
}

// PutLiquidation records an active liquidation for the account.
func (s *Store) PutLiquidation(rec LiquidationRecord) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return putJSON(tx.Bucket(bucketLiquidations), rec.Account.Bytes(), &rec)
	})
}

// GetLiquidation fetches the active liquidation for an account.
func (s *Store) GetLiquidation(account types.Address) (LiquidationRecord, error) {
	var rec LiquidationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return getJSON(tx.Bucket(bucketLiquidations), account.Bytes(), &rec)
	})
	if err != nil {
		return LiquidationRecord{}, err
	}
	return rec, nil
}

// DeleteLiquidation clears the record once the liquidation ends.
func (s *Store) DeleteLiquidation(account types.Address) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLiquidations).Delete(account.Bytes())
	})
}

// ListLiquidations returns every active liquidation.
func (s *Store) ListLiquidations() ([]LiquidationRecord, error) {
	var recs []LiquidationRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(bucketLiquidations).ForEach(func(_, raw []byte) error {
			var rec LiquidationRecord
			if err := json.Unmarshal(raw, &rec); err != nil {
				return err
			}
			recs = append(recs, rec)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return recs, nil
}

// PutBalance records the custodied token balance for a position custodian.
func (s *Store) PutBalance(custodian types.Address, tokens uint64) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		var raw [8]byte
		binary.BigEndian.PutUint64(raw[:], tokens)
		return tx.Bucket(bucketBalances).Put(custodian.Bytes(), raw[:])
	})
}

// Balance reads the custodied balance. It implements margin.TokenLedger.
func (s *Store) Balance(custodian types.Address) (uint64, bool) {
	var tokens uint64
	found := false
	_ = s.db.View(func(tx *bolt.Tx) error {
		raw := tx.Bucket(bucketBalances).Get(custodian.Bytes())
		if len(raw) == 8 {
			tokens = binary.BigEndian.Uint64(raw)
			found = true
		}
		return nil
	})
	return tokens, found
}

func putJSON(bucket *bolt.Bucket, key []byte, value any) error {
	raw, err := json.Marshal(value)
	if err != nil {
		return err
	}
	return bucket.Put(key, raw)
}

func getJSON(bucket *bolt.Bucket, key []byte, into any) error {
	raw := bucket.Get(key)
	if raw == nil {
		return ErrNotFound
	}
	return json.Unmarshal(raw, into)
}
