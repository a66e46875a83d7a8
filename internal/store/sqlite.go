package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"code.dogecoin.org/kadchain/internal/spec"
	"github.com/mattn/go-sqlite3"
)

// MemoryDSN keeps the database in process memory only.
const MemoryDSN = ":memory:"

type SQLiteStore struct {
	db *sql.DB
}

type SQLiteStoreCtx struct {
	_db *sql.DB
	ctx context.Context
}

var _ spec.Store = &SQLiteStore{}
var _ spec.StoreCtx = SQLiteStoreCtx{}

// The common read-only parts of sql.DB and sql.Tx interfaces
type Queryable interface {
	Query(query string, args ...any) (*sql.Rows, error)
	QueryRow(query string, args ...any) *sql.Row
}

const SQL_SCHEMA string = `
CREATE TABLE IF NOT EXISTS received (
	id INTEGER PRIMARY KEY AUTOINCREMENT,
	tx TEXT NOT NULL,
	time INTEGER NOT NULL
);
CREATE TABLE IF NOT EXISTS block (
	height INTEGER NOT NULL PRIMARY KEY,
	digest TEXT NOT NULL,
	prev_hash TEXT NOT NULL,
	nonce INTEGER NOT NULL,
	merkle_root TEXT NOT NULL
);
CREATE INDEX IF NOT EXISTS block_digest_i ON block (digest);
`

// NewSQLiteStore returns a spec.Store implementation that uses SQLite.
// Use MemoryDSN for a store that does not outlive the process.
func NewSQLiteStore(fileName string, ctx context.Context) (spec.Store, error) {
	backend := "sqlite3"
	db, err := sql.Open(backend, fileName)
	store := &SQLiteStore{db: db}
	if err != nil {
		return store, dbErr(err, "opening database")
	}
	// one connection: serialises writers, and keeps a :memory: database alive
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(0)
	// init tables / indexes
	_, err = db.ExecContext(ctx, SQL_SCHEMA)
	if err != nil {
		db.Close()
		return store, dbErr(err, "creating database schema")
	}
	return store, nil
}

func (s *SQLiteStore) Close() {
	s.db.Close()
}

func (s *SQLiteStore) WithCtx(ctx context.Context) spec.StoreCtx {
	return SQLiteStoreCtx{
		_db: s.db,
		ctx: ctx,
	}
}

func IsConflict(err error) bool {
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			return true
		}
	}
	return false
}

// doTxn runs work in a transaction, retrying while the database is busy.
func (s SQLiteStoreCtx) doTxn(name string, work func(tx *sql.Tx) error) error {
	limit := 120
	for {
		err := s.attempt(work)
		if err == nil {
			return nil
		}
		if IsConflict(err) {
			limit--
			if limit != 0 && s.Sleep(250*time.Millisecond) {
				continue
			}
		}
		return dbErr(err, name)
	}
}

func (s SQLiteStoreCtx) attempt(work func(tx *sql.Tx) error) error {
	tx, err := s._db.BeginTx(s.ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if err = work(tx); err != nil {
		return err
	}
	return tx.Commit()
}

// Sleep returns false if the context was cancelled.
func (s SQLiteStoreCtx) Sleep(dur time.Duration) bool {
	select {
	case <-s.ctx.Done():
		return false
	case <-time.After(dur):
		return true
	}
}

func dbErr(err error, where string) error {
	if errors.Is(err, sql.ErrNoRows) {
		return spec.WrapErr(spec.NotFound, fmt.Sprintf("SQLiteStore: not-found: %s", where), err)
	}
	var sqErr sqlite3.Error
	if errors.As(err, &sqErr) {
		if sqErr.Code == sqlite3.ErrConstraint {
			// Constraint violation, e.g. a duplicate key.
			return spec.WrapErr(spec.AlreadyExists, "SQLiteStore: already-exists", err)
		}
		if sqErr.Code == sqlite3.ErrBusy || sqErr.Code == sqlite3.ErrLocked {
			// SQLite has a single-writer policy, even in WAL (write-ahead) mode.
			// The caller may retry.
			return spec.WrapErr(spec.DBConflict, "SQLiteStore: db-conflict", err)
		}
	}
	return spec.WrapErr(spec.DBProblem, fmt.Sprintf("SQLiteStore: db-problem: %s", where), err)
}

// STORE INTERFACE

func (s SQLiteStoreCtx) AddTransaction(tx string) error {
	return s.doTxn("AddTransaction", func(t *sql.Tx) error {
		_, err := t.Exec("INSERT INTO received (tx,time) VALUES (?,?)", tx, time.Now().Unix())
		return err
	})
}

func (s SQLiteStoreCtx) Transactions() (res []string, err error) {
	err = s.doTxn("Transactions", func(tx *sql.Tx) error {
		res, err = queryStrings(tx, "SELECT tx FROM received ORDER BY id")
		return err
	})
	return
}

func (s SQLiteStoreCtx) ArchiveBlock(height int, digest string, b spec.Block) error {
	return s.doTxn("ArchiveBlock", func(tx *sql.Tx) error {
		_, err := tx.Exec("INSERT OR REPLACE INTO block (height,digest,prev_hash,nonce,merkle_root) VALUES (?,?,?,?,?)",
			height, digest, b.PrevHash, int64(b.Nonce), b.MerkleRoot)
		return err
	})
}

func (s SQLiteStoreCtx) Blocks() (res []spec.Block, err error) {
	err = s.doTxn("Blocks", func(tx *sql.Tx) error {
		rows, err := tx.Query("SELECT prev_hash,nonce,merkle_root FROM block ORDER BY height")
		if err != nil {
			return err
		}
		defer rows.Close()
		res = nil
		for rows.Next() {
			var b spec.Block
			var nonce int64
			if err := rows.Scan(&b.PrevHash, &nonce, &b.MerkleRoot); err != nil {
				return err
			}
			b.Nonce = uint64(nonce)
			res = append(res, b)
		}
		return rows.Err()
	})
	return
}

func (s SQLiteStoreCtx) BlockByDigest(digest string) (b spec.Block, height int, err error) {
	err = s.doTxn("BlockByDigest", func(tx *sql.Tx) error {
		var nonce int64
		row := tx.QueryRow("SELECT height,prev_hash,nonce,merkle_root FROM block WHERE digest=? ORDER BY height DESC LIMIT 1", digest)
		if err := row.Scan(&height, &b.PrevHash, &nonce, &b.MerkleRoot); err != nil {
			return err
		}
		b.Nonce = uint64(nonce)
		return nil
	})
	return
}

func queryStrings(q Queryable, query string, args ...any) ([]string, error) {
	rows, err := q.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []string
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return nil, err
		}
		res = append(res, s)
	}
	return res, rows.Err()
}
