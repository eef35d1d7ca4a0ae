package mysql

import (
	"fmt"
	"testing"
	"time"

	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
)

func TestTxTimeoutStatementsAreReset(t *testing.T) {
	d := Dialect()

	set := d.TxTimeoutStatements(1500 * time.Millisecond)
	assert.Equal(t, []string{
		"SET SESSION innodb_lock_wait_timeout = 2",
		"SET SESSION max_execution_time = 1500",
	}, set)

	// every session variable set for a bid transaction is restored afterwards
	assert.Len(t, d.TxResetStatements, len(set))
	assert.Contains(t, d.TxResetStatements, "SET SESSION innodb_lock_wait_timeout = DEFAULT")
	assert.Contains(t, d.TxResetStatements, "SET SESSION max_execution_time = DEFAULT")
}

func TestLockConflictClassification(t *testing.T) {
	d := Dialect()
	tests := []struct {
		number   uint16
		conflict bool
	}{
		{errLockNowait, true},
		{errLockWaitTimeout, true},
		{errLockDeadlock, true},
		{errDuplicateEntry, false},
	}
	for _, tc := range tests {
		err := fmt.Errorf("wrapped: %w", &mysql.MySQLError{Number: tc.number})
		assert.Equal(t, tc.conflict, d.IsLockConflict(err), tc.number)
	}
	assert.True(t, d.IsDuplicateKey(&mysql.MySQLError{Number: errDuplicateEntry}))
	assert.False(t, d.IsLockConflict(fmt.Errorf("plain")))
}
