package deposit

import (
	"errors"
	"time"

	"pcapi/internal/models"
	"pcapi/internal/utils"
)

const (
	Grant18Amount     int64 = 30000
	Grant18DigitalCap int64 = 10000
	Grant18Validity         = 2 // years

	Recredit16Amount int64 = 3000
	Recredit17Amount int64 = 3000
)

var (
	ErrNotEligible        = errors.New("user is not eligible to this deposit")
	ErrAlreadyGranted     = errors.New("deposit already granted")
	ErrNoActiveDeposit    = errors.New("user has no active deposit")
	ErrMissingBirthDate   = errors.New("user has no birth date")
	ErrInsufficientFunds  = errors.New("insufficient funds")
	ErrDigitalCapExceeded = errors.New("digital cap exceeded")
)

// underageAmounts is the initial GRANT_15_17 amount by age at grant time.
var underageAmounts = map[int]int64{
	15: 2000,
	16: 3000,
	17: 3000,
}

// InitialAmount returns the amount granted to someone of age for depositType.
func InitialAmount(depositType models.DepositType, age int) (int64, error) {
	switch depositType {
	case models.DepositGrant18:
		if age != 18 && age != 19 {
			return 0, ErrNotEligible
		}
		return Grant18Amount, nil
	case models.DepositGrant15_17:
		amount, ok := underageAmounts[age]
		if !ok {
			return 0, ErrNotEligible
		}
		return amount, nil
	default:
		return 0, ErrNotEligible
	}
}

// ExpirationDate returns when a deposit granted at now stops being usable.
func ExpirationDate(depositType models.DepositType, birth, now time.Time) time.Time {
	if depositType == models.DepositGrant15_17 {
		return utils.Birthday(birth, 18)
	}
	return now.AddDate(Grant18Validity, 0, 0)
}

// Spending is one non-cancelled booking charged on a deposit.
type Spending struct {
	Amount        int64  `bun:"amount"`
	Quantity      int    `bun:"quantity"`
	SubcategoryID string `bun:"subcategory_id"`
	URL           string `bun:"url"`
}

// IsDigitalCapped reports whether the spending counts against the digital cap.
func (s Spending) IsDigitalCapped() bool {
	return s.URL != "" && models.SubcategoryByID(s.SubcategoryID).IsDigitalDepositCapped
}

// ComputeWallet derives the spending state of a deposit.
func ComputeWallet(d *models.Deposit, spendings []Spending) *models.Wallet {
	w := &models.Wallet{Deposit: d, Initial: d.Amount}
	for _, r := range d.Recredits {
		w.Initial += r.Amount
	}
	for _, s := range spendings {
		total := s.Amount * int64(s.Quantity)
		w.Spent += total
		if s.IsDigitalCapped() {
			w.DigitalSpent += total
		}
	}
	w.Remaining = w.Initial - w.Spent

	if d.Type == models.DepositGrant18 {
		w.HasDigitalCap = true
		w.DigitalCap = Grant18DigitalCap
		w.DigitalLeft = Grant18DigitalCap - w.DigitalSpent
		if w.DigitalLeft > w.Remaining {
			w.DigitalLeft = w.Remaining
		}
	}
	return w
}

// CheckCanSpend verifies the wallet can pay total for an offer.
func CheckCanSpend(w *models.Wallet, offer *models.Offer, total int64) error {
	if total > w.Remaining {
		return ErrInsufficientFunds
	}
	if w.HasDigitalCap && offer.IsDigital() && offer.Subcategory().IsDigitalDepositCapped && total > w.DigitalLeft {
		return ErrDigitalCapExceeded
	}
	return nil
}

// DueRecredits lists the recredits an underage deposit should have received by now.
func DueRecredits(d *models.Deposit, birth, now time.Time) []models.Recredit {
	if d.Type != models.DepositGrant15_17 || d.IsExpired(now) {
		return nil
	}

	received := map[models.RecreditType]bool{}
	for _, r := range d.Recredits {
		received[r.RecreditType] = true
	}

	var due []models.Recredit
	steps := []struct {
		age    int
		kind   models.RecreditType
		amount int64
	}{
		{16, models.Recredit16, Recredit16Amount},
		{17, models.Recredit17, Recredit17Amount},
	}
	for _, step := range steps {
		birthday := utils.Birthday(birth, step.age)
		if received[step.kind] || now.Before(birthday) || !d.DateCreated.Before(birthday) {
			continue
		}
		due = append(due, models.Recredit{
			DepositID:    d.ID,
			Amount:       step.amount,
			RecreditType: step.kind,
			DateCreated:  now,
		})
	}
	return due
}
