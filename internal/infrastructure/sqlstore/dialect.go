package sqlstore

import "time"

// Dialect carries the driver specific pieces of the store. Queries otherwise
// use "?" placeholders understood by both supported drivers.
type Dialect struct {
	Name string

	// ForUpdateClause is appended to the row read of a bid transaction. It
	// must lock the row exclusively and fail instead of waiting when another
	// transaction holds it.
	ForUpdateClause string

	// TxTimeoutStatements are executed first in every bid transaction.
	TxTimeoutStatements func(timeout time.Duration) []string
	// TxResetStatements undo TxTimeoutStatements on the connection once the
	// transaction has ended, before it goes back to the pool.
	TxResetStatements []string

	IsLockConflict func(err error) bool
	IsDuplicateKey func(err error) bool

	Schema []string
}

func (d Dialect) txTimeoutStatements(timeout time.Duration) []string {
	if d.TxTimeoutStatements == nil || timeout <= 0 {
		return nil
	}
	return d.TxTimeoutStatements(timeout)
}

func (d Dialect) isLockConflict(err error) bool {
	return err != nil && d.IsLockConflict != nil && d.IsLockConflict(err)
}

func (d Dialect) isDuplicateKey(err error) bool {
	return err != nil && d.IsDuplicateKey != nil && d.IsDuplicateKey(err)
}
