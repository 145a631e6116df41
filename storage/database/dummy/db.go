// Package dummydb is an in-memory implementation of the repositories, used by tests and the `-inmem` API mode.
package dummydb

import (
	"context"
	"sync"
	"sync/atomic"

	"github.com/trezcool/masomo-fees/core"
	"github.com/trezcool/masomo-fees/core/fee"
	"github.com/trezcool/masomo-fees/core/scholarship"
	"github.com/trezcool/masomo-fees/core/user"
)

type (
	DB struct {
		// txMu serialises transactions, standing in for Postgres row locks.
		txMu sync.Mutex
		mu   sync.RWMutex

		user         map[string]user.User
		feeHead      map[string]fee.FeeHead
		feeStructure map[string]fee.FeeStructure
		studentFee   map[string]fee.StudentFee
		payment      map[string]fee.FeePayment
		gatewayOrder map[string]fee.GatewayOrder
		scholarship  map[string]scholarship.Scholarship
		application  map[string]scholarship.Application

		// like a Postgres sequence, it is never rolled back
		receiptSeq int64
	}

	// txExecutor is handed to the repositories inside RunInTx; it records how to undo each write.
	// The embedded executor is nil: the dummy repositories never run SQL.
	txExecutor struct {
		core.DBExecutor
		undo []func()
	}
)

var _ core.TxRunner = (*DB)(nil) // interface compliance check

func Open() *DB {
	return &DB{
		user:         make(map[string]user.User),
		feeHead:      make(map[string]fee.FeeHead),
		feeStructure: make(map[string]fee.FeeStructure),
		studentFee:   make(map[string]fee.StudentFee),
		payment:      make(map[string]fee.FeePayment),
		gatewayOrder: make(map[string]fee.GatewayOrder),
		scholarship:  make(map[string]scholarship.Scholarship),
		application:  make(map[string]scholarship.Application),
	}
}

// RunInTx runs fn alone: transactions are serialised, and when fn fails the writes it made are undone.
// Writes made outside the transaction meanwhile are kept.
func (db *DB) RunInTx(ctx context.Context, fn func(exec core.DBExecutor) error) (err error) {
	db.txMu.Lock()
	defer db.txMu.Unlock()

	if err = ctx.Err(); err != nil {
		return err
	}

	tx := &txExecutor{}
	defer func() {
		if p := recover(); p != nil {
			db.rollback(tx)
			panic(p)
		}
	}()

	if err = fn(tx); err != nil {
		db.rollback(tx)
	}
	return err
}

func (db *DB) rollback(tx *txExecutor) {
	db.mu.Lock()
	defer db.mu.Unlock()
	for i := len(tx.undo) - 1; i >= 0; i-- {
		tx.undo[i]()
	}
	tx.undo = nil
}

// put stores row under key in table. The caller holds db.mu.
// Inside a transaction, the previous row is journaled so a rollback restores it.
func put[V any](exec []core.DBExecutor, table map[string]V, key string, row V) {
	if len(exec) > 0 {
		if tx, ok := exec[0].(*txExecutor); ok {
			prev, existed := table[key]
			tx.undo = append(tx.undo, func() {
				if existed {
					table[key] = prev
				} else {
					delete(table, key)
				}
			})
		}
	}
	table[key] = row
}

func (db *DB) nextReceiptSeq() int64 {
	return atomic.AddInt64(&db.receiptSeq, 1)
}

// Reset empties every table; used between tests.
func (db *DB) Reset() {
	db.txMu.Lock()
	defer db.txMu.Unlock()
	db.mu.Lock()
	defer db.mu.Unlock()

	fresh := Open()
	db.user = fresh.user
	db.feeHead = fresh.feeHead
	db.feeStructure = fresh.feeStructure
	db.studentFee = fresh.studentFee
	db.payment = fresh.payment
	db.gatewayOrder = fresh.gatewayOrder
	db.scholarship = fresh.scholarship
	db.application = fresh.application
	atomic.StoreInt64(&db.receiptSeq, 0)
}
