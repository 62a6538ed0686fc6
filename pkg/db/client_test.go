package db

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/config"
)

type ledgerProbe struct {
	ID   int
	Memo string
}

func openProbe(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file:"+t.Name()+"?mode=memory&cache=shared"), &gorm.Config{SkipDefaultTransaction: true})
	require.NoError(t, err)
	require.NoError(t, conn.AutoMigrate(&ledgerProbe{}))
	return conn
}

func countMemo(t *testing.T, conn *gorm.DB, memo string) int64 {
	t.Helper()
	var n int64
	require.NoError(t, conn.Model(&ledgerProbe{}).Where("memo = ?", memo).Count(&n).Error)
	return n
}

func TestWithTxCommitsOrRollsBack(t *testing.T) {
	conn := openProbe(t)
	client := Wrap(conn)
	ctx := context.Background()

	require.NoError(t, client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&ledgerProbe{Memo: "deposit"}).Error
	}))
	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		require.NoError(t, tx.Create(&ledgerProbe{Memo: "overdraw"}).Error)
		return errors.New("insufficient balance")
	})
	require.EqualError(t, err, "insufficient balance")

	assert.EqualValues(t, 1, countMemo(t, conn, "deposit"))
	assert.Zero(t, countMemo(t, conn, "overdraw"))
}

func TestWithTxRollsBackOnPanic(t *testing.T) {
	conn := openProbe(t)
	client := Wrap(conn)

	assert.Panics(t, func() {
		_ = client.WithTx(context.Background(), func(tx *gorm.DB) error {
			require.NoError(t, tx.Create(&ledgerProbe{Memo: "half-written"}).Error)
			panic("boom")
		})
	})
	assert.Zero(t, countMemo(t, conn, "half-written"))
}

func TestWithTxRetriesTransientFailures(t *testing.T) {
	conn := openProbe(t)
	client := &Client{conn: conn, txRetries: 2, backoff: time.Millisecond}

	calls := 0
	err := client.WithTx(context.Background(), func(tx *gorm.DB) error {
		calls++
		if calls < 3 {
			return errors.New("database is locked")
		}
		return tx.Create(&ledgerProbe{Memo: "third attempt"}).Error
	})
	require.NoError(t, err)
	assert.Equal(t, 3, calls)
	assert.EqualValues(t, 1, countMemo(t, conn, "third attempt"))
}

func TestWithTxDoesNotRetryBusinessErrors(t *testing.T) {
	client := &Client{conn: openProbe(t), txRetries: 5}

	calls := 0
	err := client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return errors.New("insufficient balance")
	})
	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestWithTxGivesUpAfterRetryBudget(t *testing.T) {
	client := &Client{conn: openProbe(t), txRetries: 1}

	calls := 0
	err := client.WithTx(context.Background(), func(*gorm.DB) error {
		calls++
		return errors.New("database is locked")
	})
	assert.True(t, IsTransient(err))
	assert.Equal(t, 2, calls)
}

func TestWithTxStopsRetryingWhenContextEnds(t *testing.T) {
	client := &Client{conn: openProbe(t), txRetries: 10, backoff: time.Hour}
	ctx, cancel := context.WithCancel(context.Background())

	calls := 0
	err := client.WithTx(ctx, func(*gorm.DB) error {
		calls++
		cancel()
		return errors.New("database is locked")
	})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, 1, calls)
}

func TestPing(t *testing.T) {
	assert.NoError(t, Wrap(openProbe(t)).Ping(context.Background()))
}

func TestNewRequiresConnectionSettings(t *testing.T) {
	_, err := New(context.Background(), config.DBConfig{Driver: config.DriverSQLite}, nil)
	assert.EqualError(t, err, "sqlite path is required")

	_, err = New(context.Background(), config.DBConfig{}, nil)
	assert.EqualError(t, err, "database DSN is required")
}
