package search

import (
	"context"

	"pcapi/internal/models"

	"github.com/uptrace/bun"
)

type DB struct {
	Bun bun.IDB
}

// ListOffers loads offers with their stocks, venue and offerer.
func (d *DB) ListOffers(ctx context.Context, offerIDs []int64) ([]*models.Offer, error) {
	var offers []*models.Offer
	if len(offerIDs) == 0 {
		return offers, nil
	}
	err := d.Bun.NewSelect().
		Model(&offers).
		Relation("Venue").
		Relation("Venue.Offerer").
		Relation("Stocks").
		Where("offer.id IN (?)", bun.In(offerIDs)).
		OrderExpr("offer.id ASC").
		Scan(ctx)
	return offers, err
}

func (d *DB) ListVenueOfferIDs(ctx context.Context, venueIDs []int64) ([]int64, error) {
	var ids []int64
	if len(venueIDs) == 0 {
		return ids, nil
	}
	err := d.Bun.NewSelect().
		Model((*models.Offer)(nil)).
		Column("id").
		Where("venue_id IN (?)", bun.In(venueIDs)).
		OrderExpr("id ASC").
		Scan(ctx, &ids)
	return ids, err
}
