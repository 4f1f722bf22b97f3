package services_test

import (
	"bytes"
	"context"
	"encoding/csv"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"felicity/mocks"
	"felicity/models"
	"felicity/services"
)

func stockOf(t *testing.T, f *fixture, eventID, variant string) int {
	t.Helper()
	e, err := f.events.GetByID(f.ctx, eventID)
	require.NoError(t, err)
	v, ok := e.Variant(variant)
	require.True(t, ok)
	return v.Stock
}

func approve(f *fixture, org services.Principal, ticket string) (models.Registration, error) {
	return f.svc.ResolvePayment(f.ctx, org, ticket, services.PaymentDecision{Status: models.RegPurchased})
}

func TestResolvePayment_ApproveTakesStock(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 2})
	p := f.participant(t, "pat@example.com", models.AffiliationExternal)
	ticket := f.pendingOrder(t, p, e.ID, "M-Red")

	reg, err := approve(f, org, ticket)
	require.NoError(t, err)
	assert.Equal(t, models.RegPurchased, reg.Status)
	require.NotNil(t, reg.Payment)
	assert.Equal(t, org.UserID, reg.Payment.ResolvedBy)
	assert.Equal(t, 1, stockOf(t, f, e.ID, "M-Red"))

	_, err = approve(f, org, ticket)
	se := requireKind(t, err, services.KindConflict)
	assert.Equal(t, "order already purchased", se.Message)
	assert.Equal(t, 1, stockOf(t, f, e.ID, "M-Red"))
}

func TestResolvePayment_ConcurrentApprovalsOfOneOrder(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	admin := f.admin(t)
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 1})
	p := f.participant(t, "pat@example.com", models.AffiliationExternal)
	ticket := f.pendingOrder(t, p, e.ID, "M-Red")

	errs := make([]error, 2)
	var wg sync.WaitGroup
	for i, who := range []services.Principal{org, admin} {
		wg.Add(1)
		go func(i int, who services.Principal) {
			defer wg.Done()
			_, errs[i] = approve(f, who, ticket)
		}(i, who)
	}
	wg.Wait()

	ok := 0
	for _, err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.Equal(t, services.KindConflict, services.KindOf(err), err.Error())
	}
	assert.Equal(t, 1, ok)
	assert.Equal(t, 0, stockOf(t, f, e.ID, "M-Red"))

	reg, err := f.svc.GetTicket(f.ctx, p, ticket)
	require.NoError(t, err)
	assert.Equal(t, models.RegPurchased, reg.Status)
}

func TestResolvePayment_LastUnitGoesToOneOrder(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 1})
	tickets := []string{
		f.pendingOrder(t, f.participant(t, "a@example.com", models.AffiliationExternal), e.ID, "M-Red"),
		f.pendingOrder(t, f.participant(t, "b@example.com", models.AffiliationExternal), e.ID, "M-Red"),
	}

	errs := make([]error, len(tickets))
	var wg sync.WaitGroup
	for i, tk := range tickets {
		wg.Add(1)
		go func(i int, tk string) {
			defer wg.Done()
			_, errs[i] = approve(f, org, tk)
		}(i, tk)
	}
	wg.Wait()

	statuses := map[models.RegStatus]int{}
	for i, tk := range tickets {
		reg, err := f.regs.GetByTicket(f.ctx, tk)
		require.NoError(t, err)
		statuses[reg.Status]++
		if errs[i] != nil {
			se := requireKind(t, errs[i], services.KindConflict)
			assert.Equal(t, "variant M-Red is out of stock", se.Message)
			assert.Equal(t, models.RegPending, reg.Status)
		}
	}
	assert.Equal(t, map[models.RegStatus]int{models.RegPurchased: 1, models.RegPending: 1}, statuses)
	assert.Equal(t, 0, stockOf(t, f, e.ID, "M-Red"))
}

// writeHook runs before the next Replace reaches the store, standing in for
// whatever lands between an update's read and its write.
type writeHook struct {
	*mocks.EventRepo
	before func()
}

func (w *writeHook) Replace(ctx context.Context, e *models.Event, expect models.EventStatus, withVariants bool) (bool, error) {
	if fn := w.before; fn != nil {
		w.before = nil
		fn()
	}
	return w.EventRepo.Replace(ctx, e, expect, withVariants)
}

func TestUpdateEvent_KeepsStockTakenDuringEdit(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 1})
	first := f.pendingOrder(t, f.participant(t, "a@example.com", models.AffiliationExternal), e.ID, "M-Red")
	second := f.pendingOrder(t, f.participant(t, "b@example.com", models.AffiliationExternal), e.ID, "M-Red")

	events := &writeHook{EventRepo: f.events, before: func() {
		_, err := approve(f, org, first)
		require.NoError(t, err)
	}}
	editor := services.New(services.Deps{
		Events:        events,
		Registrations: f.regs,
		Users:         f.users,
		Resets:        f.resets,
		Files:         f.files,
		Now:           func() time.Time { return f.now },
	})

	updated, err := editor.UpdateEvent(f.ctx, org, e.ID, services.EventPatch{Description: strp("Now in navy too")})
	require.NoError(t, err)
	assert.Equal(t, "Now in navy too", updated.Description)
	assert.Equal(t, 0, stockOf(t, f, e.ID, "M-Red"))

	_, err = approve(f, org, second)
	se := requireKind(t, err, services.KindConflict)
	assert.Equal(t, "variant M-Red is out of stock", se.Message)

	stored, err := f.events.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Equal(t, "Now in navy too", stored.Description)
}

func TestResolvePayment_ClaimedOrderIsLeftAlone(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 2})
	held := f.pendingOrder(t, f.participant(t, "a@example.com", models.AffiliationExternal), e.ID, "M-Red")
	other := f.pendingOrder(t, f.participant(t, "b@example.com", models.AffiliationExternal), e.ID, "M-Red")

	ok, err := f.regs.ClaimPayment(f.ctx, held, "desk-2", f.now, f.now.Add(-time.Minute))
	require.NoError(t, err)
	require.True(t, ok)

	_, err = approve(f, org, held)
	se := requireKind(t, err, services.KindConflict)
	assert.Equal(t, "payment is being reviewed by someone else", se.Message)
	_, err = f.svc.ResolvePayment(f.ctx, org, held, services.PaymentDecision{Status: models.RegRejected})
	requireKind(t, err, services.KindConflict)
	assert.Equal(t, 2, stockOf(t, f, e.ID, "M-Red"))

	_, err = approve(f, org, other)
	require.NoError(t, err)
	assert.Equal(t, 1, stockOf(t, f, e.ID, "M-Red"))

	// an abandoned claim expires
	f.now = f.now.Add(2 * time.Minute)
	reg, err := approve(f, org, held)
	require.NoError(t, err)
	assert.Equal(t, models.RegPurchased, reg.Status)
	assert.Equal(t, 0, stockOf(t, f, e.ID, "M-Red"))

	ok, err = f.regs.ResolvePayment(f.ctx, held, "desk-2", models.RegPurchased, org.UserID, "", f.now)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestResolvePayment_DuplicateApprovalsDoNotStarveOtherOrders(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	admin := f.admin(t)
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 2})
	dup := f.pendingOrder(t, f.participant(t, "a@example.com", models.AffiliationExternal), e.ID, "M-Red")
	solo := f.pendingOrder(t, f.participant(t, "b@example.com", models.AffiliationExternal), e.ID, "M-Red")

	var soloErr error
	var wg sync.WaitGroup
	for _, who := range []services.Principal{org, admin} {
		wg.Add(1)
		go func(who services.Principal) {
			defer wg.Done()
			_, _ = approve(f, who, dup)
		}(who)
	}
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, soloErr = approve(f, org, solo)
	}()
	wg.Wait()

	assert.NoError(t, soloErr)
	assert.Equal(t, 0, stockOf(t, f, e.ID, "M-Red"))
	reg, err := f.regs.GetByTicket(f.ctx, dup)
	require.NoError(t, err)
	assert.Equal(t, models.RegPurchased, reg.Status)
}

func TestParticipants_ShowPaymentState(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 2})
	ticket := f.pendingOrder(t, f.participant(t, "pat@example.com", models.AffiliationExternal), e.ID, "M-Red")

	rows, err := f.svc.ListParticipants(f.ctx, org, e.ID)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	require.NotNil(t, rows[0].Payment)
	assert.True(t, strings.HasSuffix(rows[0].Payment.Proof, "/uploads/"+rows[0].Payment.ProofID))
	assert.True(t, rows[0].Payment.UploadedAt.Equal(f.now))

	out, err := f.svc.ExportParticipants(f.ctx, org, e.ID)
	require.NoError(t, err)
	records, err := csv.NewReader(bytes.NewReader(out.Body)).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 2)
	col := map[string]string{}
	for i, h := range records[0] {
		col[h] = records[1][i]
	}
	assert.Equal(t, ticket, col["ticketid"])
	assert.Equal(t, "Pending", col["status"])
	assert.Equal(t, "M-Red", col["variant"])
	assert.Equal(t, rows[0].Payment.Proof, col["paymentproof"])
	assert.Equal(t, "2026-03-01T10:00:00Z", col["paymentuploadedat"])
}

func TestResolvePayment_RejectThenReupload(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 3})
	p := f.participant(t, "pat@example.com", models.AffiliationExternal)
	ticket := f.pendingOrder(t, p, e.ID, "M-Red")

	first, err := f.regs.GetByTicket(f.ctx, ticket)
	require.NoError(t, err)

	_, err = f.svc.UploadProof(f.ctx, p, ticket, "again.png", bytes.NewReader(pngBytes))
	se := requireKind(t, err, services.KindConflict)
	assert.Equal(t, "payment already under review", se.Message)

	reg, err := f.svc.ResolvePayment(f.ctx, org, ticket, services.PaymentDecision{Status: models.RegRejected, Note: "blurry"})
	require.NoError(t, err)
	assert.Equal(t, models.RegRejected, reg.Status)
	assert.Equal(t, "blurry", reg.Payment.Note)
	assert.Equal(t, 3, stockOf(t, f, e.ID, "M-Red"))

	reg, err = f.svc.UploadProof(f.ctx, p, ticket, "again.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	assert.Equal(t, models.RegPending, reg.Status)
	assert.NotEqual(t, first.Payment.ProofID, reg.Payment.ProofID)
	assert.True(t, strings.HasSuffix(reg.Payment.Proof, "/uploads/"+reg.Payment.ProofID))

	stored, err := f.regs.GetByTicket(f.ctx, ticket)
	require.NoError(t, err)
	assert.Equal(t, reg.Payment.ProofID, stored.Payment.ProofID)
	assert.Empty(t, stored.Payment.Note)
}

func TestResolvePayment_Guards(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	other := f.organizer(t, "Music")
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 3})
	p := f.participant(t, "pat@example.com", models.AffiliationExternal)

	tk, err := f.svc.Register(f.ctx, p, e.ID, services.RegisterInput{Variant: "M-Red"})
	require.NoError(t, err)

	_, err = approve(f, org, tk.TicketID)
	requireKind(t, err, services.KindConflict)

	ticket := tk.TicketID
	_, err = f.svc.UploadProof(f.ctx, p, ticket, "proof.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)

	_, err = approve(f, other, ticket)
	requireKind(t, err, services.KindForbidden)
	_, err = f.svc.ResolvePayment(f.ctx, org, ticket, services.PaymentDecision{Status: models.RegCancelled})
	requireKind(t, err, services.KindValidation)
	_, err = approve(f, org, "FEL-MISSING")
	requireKind(t, err, services.KindNotFound)
}

func TestSubmitProof_Rules(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	merch := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 3})
	normal := f.normalEvent(t, org, 10, nil)
	p := f.participant(t, "pat@example.com", models.AffiliationExternal)
	q := f.participant(t, "quinn@example.com", models.AffiliationExternal)

	order, err := f.svc.Register(f.ctx, p, merch.ID, services.RegisterInput{Variant: "M-Red"})
	require.NoError(t, err)
	seat, err := f.svc.Register(f.ctx, p, normal.ID, services.RegisterInput{})
	require.NoError(t, err)

	_, err = f.svc.UploadProof(f.ctx, p, seat.TicketID, "proof.png", bytes.NewReader(pngBytes))
	requireKind(t, err, services.KindValidation)
	assert.Equal(t, 0, f.files.Len(), "rejected proof must not leave an orphan file")

	_, err = f.svc.UploadProof(f.ctx, p, order.TicketID, "notes.txt", strings.NewReader("paid, trust me"))
	requireKind(t, err, services.KindValidation)

	theirs, err := f.svc.UploadFile(f.ctx, q, "q.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	_, err = f.svc.SubmitProof(f.ctx, p, order.TicketID, services.ProofInput{FileID: theirs.ID})
	requireKind(t, err, services.KindForbidden)

	_, err = f.svc.SubmitProof(f.ctx, p, order.TicketID, services.ProofInput{FileID: "nope"})
	requireKind(t, err, services.KindValidation)
	_, err = f.svc.SubmitProof(f.ctx, q, order.TicketID, services.ProofInput{FileID: theirs.ID})
	requireKind(t, err, services.KindForbidden)

	mine, err := f.svc.UploadFile(f.ctx, p, "p.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	reg, err := f.svc.SubmitProof(f.ctx, p, order.TicketID, services.ProofInput{FileID: mine.ID})
	require.NoError(t, err)
	assert.Equal(t, models.RegPending, reg.Status)
	assert.Equal(t, mine.ID, reg.Payment.ProofID)
}

func TestCancelRegistration_RejectedOrderFreesSeat(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	e := f.merchEvent(t, org, 1, models.Variant{Name: "M-Red", Price: 400, Stock: 3})
	p := f.participant(t, "pat@example.com", models.AffiliationExternal)
	ticket := f.pendingOrder(t, p, e.ID, "M-Red")

	requireKind(t, f.svc.CancelRegistration(f.ctx, p, ticket), services.KindConflict)

	_, err := f.svc.ResolvePayment(f.ctx, org, ticket, services.PaymentDecision{Status: models.RegRejected})
	require.NoError(t, err)
	require.NoError(t, f.svc.CancelRegistration(f.ctx, p, ticket))

	stored, err := f.events.GetByID(f.ctx, e.ID)
	require.NoError(t, err)
	assert.Zero(t, stored.RegCount)
}

func TestOpenFile_Access(t *testing.T) {
	f := newFixture(t)
	org := f.organizer(t, "Robotics")
	other := f.organizer(t, "Music")
	admin := f.admin(t)
	e := f.merchEvent(t, org, 10, models.Variant{Name: "M-Red", Price: 400, Stock: 3})
	p := f.participant(t, "pat@example.com", models.AffiliationExternal)
	q := f.participant(t, "quinn@example.com", models.AffiliationExternal)
	ticket := f.pendingOrder(t, p, e.ID, "M-Red")

	reg, err := f.regs.GetByTicket(f.ctx, ticket)
	require.NoError(t, err)
	fileID := reg.Payment.ProofID

	for _, who := range []services.Principal{p, org, admin} {
		rc, info, err := f.svc.OpenFile(f.ctx, who, fileID)
		require.NoError(t, err)
		body, err := io.ReadAll(rc)
		require.NoError(t, err)
		rc.Close()
		assert.Equal(t, pngBytes, body)
		assert.Equal(t, "image/png", info.ContentType)
		assert.Equal(t, "proof.png", info.Name)
	}
	for _, who := range []services.Principal{q, other} {
		_, _, err := f.svc.OpenFile(f.ctx, who, fileID)
		requireKind(t, err, services.KindForbidden)
	}
	_, _, err = f.svc.OpenFile(f.ctx, services.Principal{}, fileID)
	requireKind(t, err, services.KindUnauthenticated)
	_, _, err = f.svc.OpenFile(f.ctx, p, "missing")
	requireKind(t, err, services.KindNotFound)
}
