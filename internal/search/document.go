package search

import (
	"time"

	"pcapi/internal/models"
)

// IsIndexable reports whether an offer should be searchable: active and
// approved, from a validated active offerer, with a bookable stock.
func IsIndexable(o *models.Offer, now time.Time) bool {
	if !o.IsActive || o.Validation != models.ValidationApproved {
		return false
	}
	if o.Venue == nil || o.Venue.Offerer == nil {
		return false
	}
	if !o.Venue.Offerer.IsValidated || !o.Venue.Offerer.IsActive {
		return false
	}
	for _, s := range o.Stocks {
		if s.IsBookable(now) {
			return true
		}
	}
	return false
}

func BuildDocument(o *models.Offer, now time.Time) OfferDocument {
	doc := OfferDocument{
		ObjectID:      o.ID,
		Name:          o.Name,
		SubcategoryID: o.SubcategoryID,
		VenueID:       o.VenueID,
		VenueName:     o.Venue.Name,
		OffererName:   o.Venue.Offerer.Name,
		Department:    o.Venue.DepartmentCode,
		IsDigital:     o.IsDigital(),
		IsDuo:         o.IsDuo,
		IsEvent:       o.IsEvent(),
		IndexedAt:     now,
	}

	first := true
	for _, s := range o.Stocks {
		if !s.IsBookable(now) {
			continue
		}
		if first || s.Price < doc.MinPrice {
			doc.MinPrice = s.Price
		}
		if first || s.Price > doc.MaxPrice {
			doc.MaxPrice = s.Price
		}
		first = false
		if s.BeginningDatetime != nil {
			doc.Dates = append(doc.Dates, s.BeginningDatetime.Unix())
			if doc.NextBeginning == nil || s.BeginningDatetime.Before(*doc.NextBeginning) {
				b := *s.BeginningDatetime
				doc.NextBeginning = &b
			}
		}
	}
	return doc
}
