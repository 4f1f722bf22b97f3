//go:build integration

// Runs the conditional updates against a real MongoDB:
// MONGO_URI=mongodb://localhost:27017 go test -tags integration ./models
package models

import (
	"context"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func testDatabase(t *testing.T) *mongo.Database {
	t.Helper()
	uri := os.Getenv("MONGO_URI")
	if uri == "" {
		uri = "mongodb://localhost:27017"
	}
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	require.NoError(t, err)
	if err := cli.Ping(ctx, nil); err != nil {
		t.Skipf("mongo not reachable at %s: %v", uri, err)
	}
	db := cli.Database("felicity_it_" + uuid.NewString()[:8])
	t.Cleanup(func() {
		_ = db.Drop(context.Background())
		_ = cli.Disconnect(context.Background())
	})
	return db
}

func seedEvent(t *testing.T, repo EventRepository, e Event) Event {
	t.Helper()
	now := time.Now().UTC()
	e.ID = uuid.NewString()
	e.Status = StatusPublished
	e.Eligibility = EligibleAll
	e.Dates = EventDates{Deadline: now.Add(time.Hour), Start: now.Add(2 * time.Hour), End: now.Add(3 * time.Hour)}
	e.CreatedAt, e.UpdatedAt = now, now
	require.NoError(t, repo.Create(context.Background(), &e))
	return e
}

func TestMongo_ReserveSeatNeverOverfills(t *testing.T) {
	db := testDatabase(t)
	repo := NewMongoEventRepository(db.Collection("events"))
	require.NoError(t, EnsureEventIndexes(context.Background(), db.Collection("events")))
	e := seedEvent(t, repo, Event{Name: "Tiny", Kind: KindNormal, Limit: 3, Normal: &NormalDetails{}})

	var won int32
	var wg sync.WaitGroup
	for i := 0; i < 25; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.ReserveSeat(context.Background(), e.ID, time.Now().UTC())
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 3, won)
	got, err := repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, got.RegCount)
}

func TestMongo_DecrementStockStopsAtZero(t *testing.T) {
	db := testDatabase(t)
	repo := NewMongoEventRepository(db.Collection("events"))
	e := seedEvent(t, repo, Event{
		Name:  "Hoodies",
		Kind:  KindMerch,
		Limit: 50,
		Merch: &MerchDetails{PurchaseLimit: 1, Variants: []Variant{{Name: "M-Red", Stock: 2}, {Name: "L-Blue", Stock: 5}}},
	})

	var won int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			ok, err := repo.DecrementStock(context.Background(), e.ID, "M-Red")
			assert.NoError(t, err)
			if ok {
				atomic.AddInt32(&won, 1)
			}
		}()
	}
	wg.Wait()

	assert.EqualValues(t, 2, won)
	got, err := repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	red, _ := got.Variant("M-Red")
	blue, _ := got.Variant("L-Blue")
	assert.Equal(t, 0, red.Stock)
	assert.Equal(t, 5, blue.Stock)
}

func TestMongo_OneRegisteredTicketPerNormalEvent(t *testing.T) {
	db := testDatabase(t)
	col := db.Collection("registrations")
	require.NoError(t, EnsureRegistrationIndexes(context.Background(), col))
	repo := NewMongoRegistrationRepository(col)

	newReg := func(status RegStatus) *Registration {
		return &Registration{
			ID: uuid.NewString(), TicketID: "FEL-" + uuid.NewString()[:12],
			UserID: 7, EventID: "evt-1", Kind: KindNormal, Status: status,
			CreatedAt: time.Now().UTC(),
		}
	}
	first := newReg(RegRegistered)
	require.NoError(t, repo.Insert(context.Background(), first))
	assert.ErrorIs(t, repo.Insert(context.Background(), newReg(RegRegistered)), ErrDuplicate)

	clash := newReg(RegCancelled)
	clash.TicketID = first.TicketID
	assert.ErrorIs(t, repo.Insert(context.Background(), clash), ErrTicketCollision)

	ok, err := repo.Transition(context.Background(), first.TicketID, []RegStatus{RegRegistered}, RegCancelled)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NoError(t, repo.Insert(context.Background(), newReg(RegRegistered)))
}

func TestMongo_ReplaceLeavesStockUnlessVariantsChange(t *testing.T) {
	db := testDatabase(t)
	repo := NewMongoEventRepository(db.Collection("events"))
	e := seedEvent(t, repo, Event{
		Name:  "Hoodies",
		Kind:  KindMerch,
		Limit: 50,
		Merch: &MerchDetails{PurchaseLimit: 1, Variants: []Variant{{Name: "M-Red", Stock: 1}}},
	})
	stale, err := repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)

	ok, err := repo.DecrementStock(context.Background(), e.ID, "M-Red")
	require.NoError(t, err)
	require.True(t, ok)

	stale.Description = "Now in navy too"
	stale.Merch.PurchaseLimit = 2
	ok, err = repo.Replace(context.Background(), &stale, StatusPublished, false)
	require.NoError(t, err)
	require.True(t, ok)

	got, err := repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	red, _ := got.Variant("M-Red")
	assert.Equal(t, 0, red.Stock)
	assert.Equal(t, 2, got.Merch.PurchaseLimit)
	assert.Equal(t, "Now in navy too", got.Description)

	stale.Merch.Variants = []Variant{{Name: "M-Red", Stock: 5}}
	ok, err = repo.Replace(context.Background(), &stale, StatusPublished, true)
	require.NoError(t, err)
	require.True(t, ok)
	got, err = repo.GetByID(context.Background(), e.ID)
	require.NoError(t, err)
	red, _ = got.Variant("M-Red")
	assert.Equal(t, 5, red.Stock)
}

func TestMongo_PaymentClaimIsExclusive(t *testing.T) {
	db := testDatabase(t)
	repo := NewMongoRegistrationRepository(db.Collection("registrations"))
	now := time.Now().UTC()
	reg := &Registration{
		ID: uuid.NewString(), TicketID: "FEL-" + uuid.NewString()[:12],
		UserID: 7, EventID: "evt-1", Kind: KindMerch, Variant: "M-Red", Status: RegPending,
		Payment:   &Payment{Proof: "/uploads/x", ProofID: "x", UploadedAt: now},
		CreatedAt: now,
	}
	require.NoError(t, repo.Insert(context.Background(), reg))

	ok, err := repo.ClaimPayment(context.Background(), reg.TicketID, "a", now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.ClaimPayment(context.Background(), reg.TicketID, "b", now, now.Add(-time.Minute))
	require.NoError(t, err)
	assert.False(t, ok)

	ok, err = repo.ResolvePayment(context.Background(), reg.TicketID, "b", RegPurchased, 1, "", now)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, repo.ReleaseClaim(context.Background(), reg.TicketID, "a"))
	ok, err = repo.ClaimPayment(context.Background(), reg.TicketID, "b", now, now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)
	ok, err = repo.ResolvePayment(context.Background(), reg.TicketID, "b", RegPurchased, 1, "", now)
	require.NoError(t, err)
	assert.True(t, ok)

	got, err := repo.GetByTicket(context.Background(), reg.TicketID)
	require.NoError(t, err)
	assert.Equal(t, RegPurchased, got.Status)
	assert.Empty(t, got.Payment.Claim)
}
