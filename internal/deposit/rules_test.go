package deposit

import (
	"testing"
	"time"

	"pcapi/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestInitialAmount(t *testing.T) {
	tests := []struct {
		name    string
		typ     models.DepositType
		age     int
		want    int64
		wantErr error
	}{
		{"grant 18 at 18", models.DepositGrant18, 18, 30000, nil},
		{"grant 18 at 19", models.DepositGrant18, 19, 30000, nil},
		{"grant 18 at 17", models.DepositGrant18, 17, 0, ErrNotEligible},
		{"underage at 15", models.DepositGrant15_17, 15, 2000, nil},
		{"underage at 16", models.DepositGrant15_17, 16, 3000, nil},
		{"underage at 17", models.DepositGrant15_17, 17, 3000, nil},
		{"underage at 14", models.DepositGrant15_17, 14, 0, ErrNotEligible},
		{"underage at 18", models.DepositGrant15_17, 18, 0, ErrNotEligible},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := InitialAmount(tt.typ, tt.age)
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestExpirationDate(t *testing.T) {
	birth := date(2007, 6, 15)
	now := date(2023, 1, 10)

	assert.Equal(t, date(2025, 6, 15), ExpirationDate(models.DepositGrant15_17, birth, now))
	assert.Equal(t, date(2025, 1, 10), ExpirationDate(models.DepositGrant18, birth, now))
}

func TestComputeWalletWithDigitalCap(t *testing.T) {
	d := &models.Deposit{ID: 1, Type: models.DepositGrant18, Amount: 30000}
	w := ComputeWallet(d, []Spending{
		{Amount: 2000, Quantity: 1, SubcategoryID: "LIVRE_PAPIER"},
		{Amount: 1500, Quantity: 2, SubcategoryID: "SEANCE_CINE"},
		{Amount: 4000, Quantity: 1, SubcategoryID: "ABO_PLATEFORME_VIDEO", URL: "https://example.com"},
	})

	assert.Equal(t, int64(30000), w.Initial)
	assert.Equal(t, int64(9000), w.Spent)
	assert.Equal(t, int64(21000), w.Remaining)
	assert.True(t, w.HasDigitalCap)
	assert.Equal(t, int64(4000), w.DigitalSpent)
	assert.Equal(t, int64(6000), w.DigitalLeft)
}

func TestComputeWalletDigitalLeftNeverExceedsRemaining(t *testing.T) {
	d := &models.Deposit{Type: models.DepositGrant18, Amount: 30000}
	w := ComputeWallet(d, []Spending{{Amount: 28000, Quantity: 1, SubcategoryID: "ACHAT_INSTRUMENT"}})

	assert.Equal(t, int64(2000), w.Remaining)
	assert.Equal(t, int64(2000), w.DigitalLeft)
}

func TestComputeWalletUnderageIncludesRecredits(t *testing.T) {
	d := &models.Deposit{
		Type:      models.DepositGrant15_17,
		Amount:    2000,
		Recredits: []*models.Recredit{{Amount: 3000, RecreditType: models.Recredit16}},
	}
	w := ComputeWallet(d, []Spending{{Amount: 500, Quantity: 1, SubcategoryID: "LIVRE_PAPIER"}})

	assert.Equal(t, int64(5000), w.Initial)
	assert.Equal(t, int64(4500), w.Remaining)
	assert.False(t, w.HasDigitalCap)
}

func TestCheckCanSpend(t *testing.T) {
	w := &models.Wallet{Remaining: 5000, HasDigitalCap: true, DigitalLeft: 1000}
	physical := &models.Offer{SubcategoryID: "LIVRE_PAPIER"}
	digital := &models.Offer{SubcategoryID: "ABO_PLATEFORME_VIDEO", URL: "https://example.com"}

	assert.NoError(t, CheckCanSpend(w, physical, 5000))
	assert.ErrorIs(t, CheckCanSpend(w, physical, 5001), ErrInsufficientFunds)
	assert.NoError(t, CheckCanSpend(w, digital, 1000))
	assert.ErrorIs(t, CheckCanSpend(w, digital, 1500), ErrDigitalCapExceeded)
}

func TestDueRecredits(t *testing.T) {
	birth := date(2007, 6, 15)
	d := &models.Deposit{ID: 9, Type: models.DepositGrant15_17, DateCreated: date(2022, 9, 1)}

	assert.Empty(t, DueRecredits(d, birth, date(2023, 6, 14)))

	due := DueRecredits(d, birth, date(2023, 6, 15))
	require.Len(t, due, 1)
	assert.Equal(t, models.Recredit16, due[0].RecreditType)
	assert.Equal(t, int64(9), due[0].DepositID)

	d.Recredits = []*models.Recredit{{RecreditType: models.Recredit16}}
	due = DueRecredits(d, birth, date(2024, 7, 1))
	require.Len(t, due, 1)
	assert.Equal(t, models.Recredit17, due[0].RecreditType)
}

func TestDueRecreditsSkipsBirthdaysBeforeGrant(t *testing.T) {
	birth := date(2007, 6, 15)
	// granted at 16, the initial amount already covers that year
	d := &models.Deposit{Type: models.DepositGrant15_17, DateCreated: date(2023, 8, 1)}

	assert.Empty(t, DueRecredits(d, birth, date(2023, 9, 1)))
	due := DueRecredits(d, birth, date(2024, 6, 15))
	require.Len(t, due, 1)
	assert.Equal(t, models.Recredit17, due[0].RecreditType)
}
