package dbtest

import (
	"testing"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/angelmondragon/orderportal/pkg/db/models"
	"github.com/angelmondragon/orderportal/pkg/enums"
)

// Money parses a fixture amount, failing loudly on typos.
func Money(raw string) decimal.Decimal {
	return decimal.RequireFromString(raw)
}

// SeedUser inserts an active user holding the given balance. A positive opening balance is
// backed by a deposit row so the ledger sum matches the stored balance.
func SeedUser(t *testing.T, conn *gorm.DB, balance string) models.User {
	t.Helper()
	id := uuid.New()
	user := models.User{
		ID:       id,
		Email:    id.String() + "@orderportal.test",
		Name:     "Test User",
		Role:     enums.UserRoleUser,
		Balance:  Money(balance),
		IsActive: true,
	}
	require.NoError(t, conn.Create(&user).Error)
	if user.Balance.IsPositive() {
		ref := enums.ReferenceTypeAdminAdjustment
		opening := models.BalanceTransaction{
			UserID:        id,
			Type:          enums.TransactionTypeDeposit,
			Amount:        user.Balance,
			BalanceBefore: decimal.Zero,
			BalanceAfter:  user.Balance,
			Description:   "Opening balance",
			ReferenceID:   &id,
			ReferenceType: &ref,
		}
		require.NoError(t, conn.Create(&opening).Error)
	}
	return user
}

// SeedAdmin inserts an administrator with a zero balance.
func SeedAdmin(t *testing.T, conn *gorm.DB) models.User {
	t.Helper()
	admin := SeedUser(t, conn, "0")
	require.NoError(t, conn.Model(&models.User{}).Where("id = ?", admin.ID).Update("role", enums.UserRoleAdmin).Error)
	admin.Role = enums.UserRoleAdmin
	return admin
}

// SeedProduct inserts an active, available product.
func SeedProduct(t *testing.T, conn *gorm.DB, name, price string) models.Product {
	t.Helper()
	product := models.Product{
		Name:        name,
		Category:    "general",
		Price:       Money(price),
		IsActive:    true,
		IsAvailable: true,
	}
	require.NoError(t, conn.Create(&product).Error)
	return product
}

// SeedOption attaches an available option to a product.
func SeedOption(t *testing.T, conn *gorm.DB, productID uuid.UUID, name, surcharge string) models.ProductOption {
	t.Helper()
	option := models.ProductOption{
		ProductID:   productID,
		Name:        name,
		Surcharge:   Money(surcharge),
		IsAvailable: true,
	}
	require.NoError(t, conn.Create(&option).Error)
	return option
}

// Balance reads the stored balance for a user.
func Balance(t *testing.T, conn *gorm.DB, userID uuid.UUID) decimal.Decimal {
	t.Helper()
	var user models.User
	require.NoError(t, conn.First(&user, "id = ?", userID).Error)
	return user.Balance
}

// Transactions returns a user's ledger rows oldest first.
func Transactions(t *testing.T, conn *gorm.DB, userID uuid.UUID) []models.BalanceTransaction {
	t.Helper()
	var rows []models.BalanceTransaction
	require.NoError(t, conn.Where("user_id = ?", userID).Order("created_at ASC").Order("rowid ASC").Find(&rows).Error)
	return rows
}
