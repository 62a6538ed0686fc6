package ledger

import (
	"context"
	"sync"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/angelmondragon/orderportal/pkg/db"
	"github.com/angelmondragon/orderportal/pkg/db/dbtest"
	"github.com/angelmondragon/orderportal/pkg/db/models"
	pkgerrors "github.com/angelmondragon/orderportal/pkg/errors"
	"github.com/angelmondragon/orderportal/pkg/outbox"
)

func TestRowLockSerializesConcurrentDebitsOnPostgres(t *testing.T) {
	conn := dbtest.OpenPostgres(t)
	svc, err := NewService(ServiceParams{
		Repository: NewRepository(conn),
		TxRunner:   db.Wrap(conn),
		Outbox:     outbox.NewService(outbox.NewRepository(conn), nil),
		Config:     defaultConfig(),
	})
	require.NoError(t, err)
	user := dbtest.SeedUser(t, conn, "100")

	const workers = 6
	var wg sync.WaitGroup
	errs := make([]error, workers)
	for i := range errs {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			_, errs[i] = svc.ApplyStandalone(context.Background(), purchase(user.ID, "30"))
		}(i)
	}
	wg.Wait()

	succeeded := 0
	for _, err := range errs {
		if err == nil {
			succeeded++
			continue
		}
		assert.True(t, pkgerrors.IsCode(err, pkgerrors.CodeInsufficient), "unexpected error %v", err)
	}
	assert.Equal(t, 3, succeeded)
	assert.True(t, dbtest.Balance(t, conn, user.ID).Equal(dbtest.Money("10")))

	var rows []models.BalanceTransaction
	require.NoError(t, conn.Where("user_id = ?", user.ID).Order("created_at ASC").Find(&rows).Error)
	require.Len(t, rows, 1+succeeded)
	sum := decimal.Zero
	for i, row := range rows {
		sum = sum.Add(row.Amount)
		if i > 0 {
			assert.True(t, row.BalanceBefore.Equal(rows[i-1].BalanceAfter), "entry %d breaks the chain", i)
		}
	}
	assert.True(t, sum.Equal(dbtest.Money("10")))
}
