package finance

import (
	"context"
	"fmt"
	"sort"
	"time"

	"pcapi/internal/models"
	"pcapi/internal/utils"
)

// OffererRevenue aggregates the priced bookings of an offerer over a year.
type OffererRevenue struct {
	OffererID           int64                   `json:"offerer_id"`
	Year                int                     `json:"year"`
	TotalRevenue        int64                   `json:"total_revenue"`
	IndividualRevenue   int64                   `json:"individual_revenue"`
	CollectiveRevenue   int64                   `json:"collective_revenue"`
	TotalReimbursed     int64                   `json:"total_reimbursed"`
	ExpectedReimbursed  int64                   `json:"expected_reimbursed"`
	RealizedReimbursed  int64                   `json:"realized_reimbursed"`
	TotalBookingsPriced int                     `json:"total_bookings_priced"`
	MonthlyRevenue      []MonthlyRevenueMetrics `json:"monthly_revenue"`
	RevenueByVenue      []VenueRevenueMetrics   `json:"revenue_by_venue"`
}

// MonthlyRevenueMetrics contains metrics for one Paris calendar month.
type MonthlyRevenueMetrics struct {
	Month          string `json:"month"`
	Revenue        int64  `json:"revenue"`
	Reimbursed     int64  `json:"reimbursed"`
	BookingsPriced int    `json:"bookings_priced"`
}

type VenueRevenueMetrics struct {
	VenueID        int64  `json:"venue_id"`
	VenueName      string `json:"venue_name"`
	Revenue        int64  `json:"revenue"`
	Reimbursed     int64  `json:"reimbursed"`
	BookingsPriced int    `json:"bookings_priced"`
}

// GetOffererRevenue returns revenue analytics of the offerer for a Paris
// calendar year. Pricings not yet paid count as expected reimbursements,
// paid ones as realized.
func (s *Service) GetOffererRevenue(ctx context.Context, offererID int64, year int) (*OffererRevenue, error) {
	from := time.Date(year, time.January, 1, 0, 0, 0, 0, utils.Paris())
	rows, err := s.Store.ListOffererRevenue(ctx, offererID, from.UTC(), from.AddDate(1, 0, 0).UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to list offerer revenue: %w", err)
	}

	result := &OffererRevenue{
		OffererID:      offererID,
		Year:           year,
		MonthlyRevenue: make([]MonthlyRevenueMetrics, 0, 12),
		RevenueByVenue: make([]VenueRevenueMetrics, 0),
	}

	months := map[string]*MonthlyRevenueMetrics{}
	var monthOrder []string
	venues := map[int64]*VenueRevenueMetrics{}
	for _, r := range rows {
		result.TotalRevenue += r.Revenue
		result.TotalReimbursed += r.Reimbursed
		result.TotalBookingsPriced++
		if r.IsCollective {
			result.CollectiveRevenue += r.Revenue
		} else {
			result.IndividualRevenue += r.Revenue
		}
		if models.PricingStatus(r.PricingStatus) == models.PricingValidated {
			result.ExpectedReimbursed += r.Reimbursed
		} else {
			result.RealizedReimbursed += r.Reimbursed
		}

		month := r.ValueDate.In(utils.Paris()).Format("2006-01")
		m, ok := months[month]
		if !ok {
			m = &MonthlyRevenueMetrics{Month: month}
			months[month] = m
			monthOrder = append(monthOrder, month)
		}
		m.Revenue += r.Revenue
		m.Reimbursed += r.Reimbursed
		m.BookingsPriced++

		v, ok := venues[r.VenueID]
		if !ok {
			v = &VenueRevenueMetrics{VenueID: r.VenueID, VenueName: r.VenueName}
			venues[r.VenueID] = v
		}
		v.Revenue += r.Revenue
		v.Reimbursed += r.Reimbursed
		v.BookingsPriced++
	}

	sort.Strings(monthOrder)
	for _, month := range monthOrder {
		result.MonthlyRevenue = append(result.MonthlyRevenue, *months[month])
	}
	for _, v := range venues {
		result.RevenueByVenue = append(result.RevenueByVenue, *v)
	}
	sort.Slice(result.RevenueByVenue, func(i, j int) bool {
		if result.RevenueByVenue[i].Revenue != result.RevenueByVenue[j].Revenue {
			return result.RevenueByVenue[i].Revenue > result.RevenueByVenue[j].Revenue
		}
		return result.RevenueByVenue[i].VenueID < result.RevenueByVenue[j].VenueID
	})

	return result, nil
}

// PricingPointRevenue returns the year-to-date individual revenue of a
// pricing point, for the Paris calendar year containing at.
func (s *Service) PricingPointRevenue(ctx context.Context, pricingPointID int64, at time.Time) (int64, error) {
	from, to := revenueYear(at)
	return s.Store.YearRevenue(ctx, pricingPointID, from, to)
}
