// Package database carries the sql plumbing shared by the wallet's
// sqlite store: a cache of prepared statements keyed by query text, so
// walletdb's read path (outputs, tx log, payments, stored bodies)
// prepares each query once per process.
package database

import (
	"database/sql"
	"sync"
)

// StmtCache maps query text to its prepared statement. Safe for
// concurrent use.
type StmtCache struct {
	db *sql.DB
	m  sync.Map
}

func NewStmtCache(db *sql.DB) *StmtCache {
	return &StmtCache{db: db}
}

// Prepare returns the cached statement for query, preparing and
// caching it on first use. Two goroutines racing the first use both
// prepare; the loser's statement is closed.
func (sc *StmtCache) Prepare(query string) (*sql.Stmt, error) {
	if cached, ok := sc.m.Load(query); ok {
		return cached.(*sql.Stmt), nil
	}
	stmt, err := sc.db.Prepare(query)
	if err != nil {
		return nil, err
	}
	if winner, loaded := sc.m.LoadOrStore(query, stmt); loaded {
		stmt.Close()
		return winner.(*sql.Stmt), nil
	}
	return stmt, nil
}

// Clear closes every cached statement. The store calls this before
// closing the underlying handle.
func (sc *StmtCache) Clear() {
	sc.m.Range(func(k, v interface{}) bool {
		_ = v.(*sql.Stmt).Close()
		sc.m.Delete(k)
		return true
	})
}
