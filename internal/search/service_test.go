package search

import (
	"context"
	"errors"
	"testing"
	"time"

	"pcapi/internal/database/dbtest"
	"pcapi/internal/lock"
	"pcapi/internal/logger"
	"pcapi/internal/models"

	"github.com/alicebob/miniredis/v2"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
)

var testNow = time.Date(2024, 6, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	db      *bun.DB
	svc     *Service
	redis   *miniredis.Miniredis
	backend *MemoryBackend
	venue   *models.Venue
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	db := dbtest.New(t)

	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })

	offerer := &models.Offerer{Name: "Librairie des quais", IsValidated: true, IsActive: true, CreatedAt: testNow}
	dbtest.Insert(t, db, offerer)
	venue := &models.Venue{OffererID: offerer.ID, Name: "Boutique", DepartmentCode: "33"}
	dbtest.Insert(t, db, venue)

	backend := NewMemoryBackend()
	svc := NewService(&DB{Bun: db}, NewQueue(client), backend, lock.NewRedis(client, logger.Nop()), logger.Nop(), Options{
		BatchSize: 100,
		LockTTL:   time.Minute,
	})
	svc.Now = func() time.Time { return testNow }

	return &fixture{db: db, svc: svc, redis: mr, backend: backend, venue: venue}
}

func (f *fixture) offer(t *testing.T, active bool, prices ...int64) *models.Offer {
	t.Helper()
	o := &models.Offer{
		VenueID:       f.venue.ID,
		Name:          "Roman",
		SubcategoryID: "LIVRE_PAPIER",
		IsActive:      active,
		Validation:    models.ValidationApproved,
		CreatedAt:     testNow,
	}
	dbtest.Insert(t, f.db, o)
	for _, p := range prices {
		dbtest.Insert(t, f.db, &models.Stock{OfferID: o.ID, Price: p})
	}
	return o
}

func TestIndexQueuedSplitsIndexableOffers(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	bookable := f.offer(t, true, 1200, 800)
	inactive := f.offer(t, false, 500)
	noStock := f.offer(t, true)
	require.NoError(t, f.backend.Index(ctx, []OfferDocument{{ObjectID: inactive.ID}, {ObjectID: 999}}))

	require.NoError(t, f.svc.EnqueueOffers(ctx, bookable.ID, inactive.ID, noStock.ID, 999, bookable.ID))

	report, err := f.svc.IndexQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, Report{Indexed: 1, Unindexed: 3}, report)
	assert.Equal(t, []int64{bookable.ID}, f.backend.IDs())

	doc, ok := f.backend.Get(bookable.ID)
	require.True(t, ok)
	assert.Equal(t, int64(800), doc.MinPrice)
	assert.Equal(t, int64(1200), doc.MaxPrice)
	assert.Equal(t, "Boutique", doc.VenueName)
	assert.Equal(t, "Librairie des quais", doc.OffererName)
	assert.Equal(t, "33", doc.Department)

	size, err := f.svc.Queue.Size(ctx, OffersQueueKey)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestIndexQueuedExpandsVenues(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	first := f.offer(t, true, 100)
	second := f.offer(t, true, 200)
	require.NoError(t, f.svc.EnqueueVenues(ctx, f.venue.ID))

	report, err := f.svc.IndexQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, 2, report.Indexed)
	assert.Equal(t, []int64{first.ID, second.ID}, f.backend.IDs())
}

func TestFailedIndexingIsRetried(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.offer(t, true, 100)
	require.NoError(t, f.svc.EnqueueOffers(ctx, o.ID))

	f.backend.Err = errors.New("search engine down")
	report, err := f.svc.IndexQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Failed)

	members, err := f.redis.Members(OffersErrorQueueKey)
	require.NoError(t, err)
	assert.Len(t, members, 1)

	f.backend.Err = nil
	report, err = f.svc.IndexQueued(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, report.Indexed)
	assert.Equal(t, []int64{o.ID}, f.backend.IDs())

	size, err := f.svc.Queue.Size(ctx, OffersErrorQueueKey)
	require.NoError(t, err)
	assert.Zero(t, size)
}

func TestRetriedIdsSurviveQueueReadFailure(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.redis.SAdd(OffersErrorQueueKey, "5", "6")
	require.NoError(t, err)
	// a string under the queue key makes SPOP fail with WRONGTYPE
	require.NoError(t, f.redis.Set(OffersQueueKey, "corrupted"))

	_, err = f.svc.IndexQueued(ctx)
	require.Error(t, err)

	members, err := f.redis.Members(OffersErrorQueueKey)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"5", "6"}, members)
}

func TestIndexQueuedRefusedWhileLocked(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	o := f.offer(t, true, 100)
	require.NoError(t, f.svc.EnqueueOffers(ctx, o.ID))
	require.NoError(t, f.redis.Set(lock.SearchIndexingKey, "other-worker"))

	_, err := f.svc.IndexQueued(ctx)
	assert.ErrorIs(t, err, ErrIndexingInProgress)

	size, err := f.svc.Queue.Size(ctx, OffersQueueKey)
	require.NoError(t, err)
	assert.Equal(t, int64(1), size)
}

func TestIsIndexable(t *testing.T) {
	past := testNow.Add(-time.Hour)
	future := testNow.Add(48 * time.Hour)
	zero := 0

	base := func() *models.Offer {
		return &models.Offer{
			IsActive:   true,
			Validation: models.ValidationApproved,
			Venue:      &models.Venue{Offerer: &models.Offerer{IsValidated: true, IsActive: true}},
			Stocks:     []*models.Stock{{Price: 100}},
		}
	}

	tests := []struct {
		name   string
		change func(o *models.Offer)
		want   bool
	}{
		{"bookable", func(o *models.Offer) {}, true},
		{"pending validation", func(o *models.Offer) { o.Validation = models.ValidationPending }, false},
		{"offerer not validated", func(o *models.Offer) { o.Venue.Offerer.IsValidated = false }, false},
		{"offerer inactive", func(o *models.Offer) { o.Venue.Offerer.IsActive = false }, false},
		{"sold out", func(o *models.Offer) { o.Stocks[0].Quantity = &zero }, false},
		{"soft deleted stock", func(o *models.Offer) { o.Stocks[0].IsSoftDeleted = true }, false},
		{"past event", func(o *models.Offer) { o.Stocks[0].BeginningDatetime = &past }, false},
		{"future event", func(o *models.Offer) { o.Stocks[0].BeginningDatetime = &future }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			o := base()
			tt.change(o)
			assert.Equal(t, tt.want, IsIndexable(o, testNow))
		})
	}
}

func TestBuildDocumentKeepsBookableDates(t *testing.T) {
	soon := testNow.Add(24 * time.Hour)
	later := testNow.Add(72 * time.Hour)
	past := testNow.Add(-time.Hour)

	o := &models.Offer{
		ID:            7,
		Name:          "Concert",
		SubcategoryID: "CONCERT",
		IsDuo:         true,
		Venue:         &models.Venue{Name: "Salle", Offerer: &models.Offerer{Name: "Asso"}},
		Stocks: []*models.Stock{
			{Price: 3000, BeginningDatetime: &later},
			{Price: 2000, BeginningDatetime: &soon},
			{Price: 100, BeginningDatetime: &past},
		},
	}

	doc := BuildDocument(o, testNow)
	assert.Equal(t, int64(2000), doc.MinPrice)
	assert.Equal(t, int64(3000), doc.MaxPrice)
	assert.Equal(t, []int64{later.Unix(), soon.Unix()}, doc.Dates)
	require.NotNil(t, doc.NextBeginning)
	assert.Equal(t, soon, *doc.NextBeginning)
	assert.True(t, doc.IsDuo)
	assert.True(t, doc.IsEvent)
}
