package finance

import (
	"time"

	"pcapi/internal/models"

	"github.com/shopspring/decimal"
)

// Revenue thresholds of a pricing point over a calendar year, in cents.
const (
	threshold20k  int64 = 20000 * 100
	threshold40k  int64 = 40000 * 100
	threshold150k int64 = 150000 * 100
)

// Rule groups, as printed on invoices.
const (
	GroupStandard      = "STANDARD"
	GroupBook          = "BOOK"
	GroupNotReimbursed = "NOT_REIMBURSED"
	GroupCustom        = "CUSTOM"
	GroupEducational   = "EDUCATIONAL"

	customRuleName    = "CustomRule"
	customRuleLabel   = "Remboursement personnalisé"
	rateDecimalPlaces = 4
)

// Pricable is what the reimbursement rules know about a booking.
type Pricable struct {
	OfferID       int64
	VenueID       int64
	OffererID     int64
	SubcategoryID string
	IsDigital     bool
	IsCollective  bool
	Quantity      int
	Total         int64
}

func (p Pricable) isBook() bool {
	return models.SubcategoryByID(p.SubcategoryID).IsBook
}

// isDigitalNonBook offers are never reimbursed.
func (p Pricable) isDigitalNonBook() bool {
	if p.IsCollective || p.isBook() {
		return false
	}
	return p.IsDigital || models.SubcategoryByID(p.SubcategoryID).IsOnline
}

// StandardRule reimburses a share of the booking amount while the pricing
// point's yearly revenue is in (MinRevenue, MaxRevenue]. MaxRevenue 0 means
// no upper bound.
type StandardRule struct {
	Name        string
	Group       string
	Description string
	Rate        decimal.Decimal
	MinRevenue  int64
	MaxRevenue  int64
	appliesTo   func(p Pricable) bool
}

func (r StandardRule) IsRelevant(p Pricable, revenue int64) bool {
	if !r.appliesTo(p) {
		return false
	}
	if r.MinRevenue > 0 && revenue <= r.MinRevenue {
		return false
	}
	return r.MaxRevenue == 0 || revenue <= r.MaxRevenue
}

func isCollective(p Pricable) bool { return p.IsCollective }

func isIndividualBook(p Pricable) bool { return !p.IsCollective && p.isBook() }

func isIndividualOther(p Pricable) bool {
	return !p.IsCollective && !p.isBook() && !p.isDigitalNonBook()
}

func isIndividualPhysical(p Pricable) bool {
	return isIndividualBook(p) || isIndividualOther(p)
}

// StandardRules are checked in order; the first relevant one applies.
var StandardRules = []StandardRule{
	{
		Name:        "EducationalOffersReimbursement",
		Group:       GroupEducational,
		Description: "Remboursement total pour les offres éducationnelles",
		Rate:        decimal.NewFromInt(1),
		appliesTo:   isCollective,
	},
	{
		Name:        "DigitalThingsReimbursement",
		Group:       GroupNotReimbursed,
		Description: "Pas de remboursement pour les offres numériques",
		Rate:        decimal.Zero,
		appliesTo:   Pricable.isDigitalNonBook,
	},
	{
		Name:        "PhysicalOffersReimbursement",
		Group:       GroupStandard,
		Description: "Remboursement total des offres physiques",
		Rate:        decimal.NewFromInt(1),
		MaxRevenue:  threshold20k,
		appliesTo:   isIndividualPhysical,
	},
	{
		Name:        "ReimbursementRateForBookAbove20000",
		Group:       GroupBook,
		Description: "Remboursement à 95% au dessus de 20 000 € pour les livres",
		Rate:        decimal.RequireFromString("0.95"),
		MinRevenue:  threshold20k,
		appliesTo:   isIndividualBook,
	},
	{
		Name:        "ReimbursementRateByVenueBetween20000And40000",
		Group:       GroupStandard,
		Description: "Remboursement à 95% entre 20 000 € et 40 000 € par lieu",
		Rate:        decimal.RequireFromString("0.95"),
		MinRevenue:  threshold20k,
		MaxRevenue:  threshold40k,
		appliesTo:   isIndividualOther,
	},
	{
		Name:        "ReimbursementRateByVenueBetween40000And150000",
		Group:       GroupStandard,
		Description: "Remboursement à 92% entre 40 000 € et 150 000 € par lieu",
		Rate:        decimal.RequireFromString("0.92"),
		MinRevenue:  threshold40k,
		MaxRevenue:  threshold150k,
		appliesTo:   isIndividualOther,
	},
	{
		Name:        "ReimbursementRateAbove150000",
		Group:       GroupStandard,
		Description: "Remboursement à 90% au dessus de 150 000 € par lieu",
		Rate:        decimal.RequireFromString("0.90"),
		MinRevenue:  threshold150k,
		appliesTo:   isIndividualOther,
	},
}

func StandardRuleByName(name string) (StandardRule, bool) {
	for _, r := range StandardRules {
		if r.Name == name {
			return r, true
		}
	}
	return StandardRule{}, false
}

// AppliedRule is the rule chosen to price one booking.
type AppliedRule struct {
	Standard *StandardRule
	Custom   *models.CustomReimbursementRule
}

func (a AppliedRule) Name() string {
	if a.Custom != nil {
		return customRuleName
	}
	return a.Standard.Name
}

func (a AppliedRule) Group() string {
	if a.Custom != nil {
		return GroupCustom
	}
	return a.Standard.Group
}

func (a AppliedRule) Label() string {
	if a.Custom != nil {
		return customRuleLabel
	}
	return a.Standard.Description
}

// Reimbursed returns the amount paid back to the offerer for p, in cents.
// Rates are rounded half to even.
func (a AppliedRule) Reimbursed(p Pricable) int64 {
	if a.Custom != nil && a.Custom.Amount != nil {
		return *a.Custom.Amount * int64(p.Quantity)
	}
	rate := a.Standard.rate()
	if a.Custom != nil {
		rate = a.Custom.Rate.Decimal
	}
	return decimal.NewFromInt(p.Total).Mul(rate).RoundBank(0).IntPart()
}

func (r *StandardRule) rate() decimal.Decimal {
	if r == nil {
		return decimal.Zero
	}
	return r.Rate
}

// EffectiveRate is reimbursed / total, the rate shown on invoice lines.
func EffectiveRate(total, reimbursed int64) decimal.Decimal {
	if total == 0 {
		return decimal.Zero
	}
	return decimal.NewFromInt(reimbursed).DivRound(decimal.NewFromInt(total), rateDecimalPlaces)
}

// customRuleSpecificity ranks offer rules above venue rules above offerer rules.
func customRuleSpecificity(r *models.CustomReimbursementRule) int {
	switch {
	case r.OfferID != nil:
		return 3
	case r.VenueID != nil:
		return 2
	case r.OffererID != nil:
		return 1
	}
	return 0
}

func customRuleMatches(r *models.CustomReimbursementRule, p Pricable, at time.Time) bool {
	if !r.IsActiveAt(at) {
		return false
	}
	switch {
	case r.OfferID != nil:
		if *r.OfferID != p.OfferID {
			return false
		}
	case r.VenueID != nil:
		if *r.VenueID != p.VenueID {
			return false
		}
	case r.OffererID != nil:
		if *r.OffererID != p.OffererID {
			return false
		}
	default:
		return false
	}
	if len(r.Subcategories) == 0 {
		return true
	}
	for _, s := range r.Subcategories {
		if s == p.SubcategoryID {
			return true
		}
	}
	return false
}

// SelectRule picks the most specific matching custom rule, or else the first
// relevant standard rule for the pricing point's revenue. Collective
// bookings only follow standard rules.
func SelectRule(customs []*models.CustomReimbursementRule, p Pricable, revenue int64, at time.Time) AppliedRule {
	if !p.IsCollective {
		var best *models.CustomReimbursementRule
		for _, r := range customs {
			if !customRuleMatches(r, p, at) {
				continue
			}
			if best == nil || customRuleSpecificity(r) > customRuleSpecificity(best) {
				best = r
			}
		}
		if best != nil {
			return AppliedRule{Custom: best}
		}
	}

	for i := range StandardRules {
		if StandardRules[i].IsRelevant(p, revenue) {
			return AppliedRule{Standard: &StandardRules[i]}
		}
	}
	// not reached: the tiers above cover every pricable
	return AppliedRule{Standard: &StandardRules[len(StandardRules)-1]}
}
