package services_test

import (
	"bytes"
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"felicity/mocks"
	"felicity/models"
	"felicity/services"
	"felicity/utils"
)

func init() { utils.BcryptCost = bcrypt.MinCost }

var pngBytes = []byte("\x89PNG\r\n\x1a\n\x00\x00\x00\x0dIHDR\x00\x00\x00\x01\x00\x00\x00\x01\x08\x02\x00\x00\x00")

type recorder struct {
	mu      sync.Mutex
	notices map[string][]any
}

func (r *recorder) Publish(eventID string, v any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notices[eventID] = append(r.notices[eventID], v)
}

func (r *recorder) For(eventID string) []any {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]any(nil), r.notices[eventID]...)
}

type fixture struct {
	svc    *services.Service
	events *mocks.EventRepo
	regs   *mocks.RegRepo
	users  *mocks.UserRepo
	resets *mocks.ResetRepo
	files  *mocks.MemoryStore
	live   *recorder
	now    time.Time
	ctx    context.Context
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		events: mocks.NewEventRepo(),
		regs:   mocks.NewRegRepo(),
		users:  mocks.NewUserRepo(),
		files:  mocks.NewMemoryStore(),
		live:   &recorder{notices: map[string][]any{}},
		now:    time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC),
		ctx:    context.Background(),
	}
	f.resets = mocks.NewResetRepo(f.users)
	f.svc = services.New(services.Deps{
		Events:        f.events,
		Registrations: f.regs,
		Users:         f.users,
		Resets:        f.resets,
		Files:         f.files,
		Live:          f.live,
		Now:           func() time.Time { return f.now },
	})
	return f
}

func (f *fixture) participant(t *testing.T, email string, aff models.Affiliation) services.Principal {
	t.Helper()
	college := "Elsewhere University"
	if aff == models.AffiliationIIIT {
		college = "IIIT Hyderabad"
	}
	u := models.User{
		Email:    email,
		Password: "password1",
		Role:     models.RoleParticipant,
		Participant: &models.ParticipantProfile{
			FirstName:   "Pat",
			LastName:    "Doe",
			College:     college,
			Affiliation: aff,
			Following:   []int64{},
		},
	}
	require.NoError(t, f.users.Create(f.ctx, &u))
	return services.Principal{UserID: u.ID, Role: models.RoleParticipant}
}

func (f *fixture) organizer(t *testing.T, name string) services.Principal {
	t.Helper()
	u := models.User{
		Email:     name + "@clubs.example.com",
		Password:  "password1",
		Role:      models.RoleOrganizer,
		Organizer: &models.OrganizerProfile{Name: name, Category: "Technical"},
	}
	require.NoError(t, f.users.Create(f.ctx, &u))
	return services.Principal{UserID: u.ID, Role: models.RoleOrganizer}
}

func (f *fixture) admin(t *testing.T) services.Principal {
	t.Helper()
	u := models.User{Email: "admin@felicity.example.com", Password: "password1", Role: models.RoleAdmin}
	require.NoError(t, f.users.Create(f.ctx, &u))
	return services.Principal{UserID: u.ID, Role: models.RoleAdmin}
}

func (f *fixture) dates() models.EventDates {
	return models.EventDates{
		Deadline: f.now.Add(24 * time.Hour),
		Start:    f.now.Add(48 * time.Hour),
		End:      f.now.Add(50 * time.Hour),
	}
}

func (f *fixture) publish(t *testing.T, org services.Principal, id string) models.Event {
	t.Helper()
	st := models.StatusPublished
	e, err := f.svc.UpdateEvent(f.ctx, org, id, services.EventPatch{Status: &st})
	require.NoError(t, err)
	return e
}

func (f *fixture) normalEvent(t *testing.T, org services.Principal, limit int, form []models.FormField) models.Event {
	t.Helper()
	e, err := f.svc.CreateEvent(f.ctx, org, services.EventInput{
		Name:       "Hackathon",
		Type:       models.KindNormal,
		Dates:      f.dates(),
		Limit:      limit,
		Tags:       []string{"Tech"},
		FormSchema: form,
	})
	require.NoError(t, err)
	return f.publish(t, org, e.ID)
}

func (f *fixture) merchEvent(t *testing.T, org services.Principal, limit int, variants ...models.Variant) models.Event {
	t.Helper()
	e, err := f.svc.CreateEvent(f.ctx, org, services.EventInput{
		Name:     "Club Hoodies",
		Type:     models.KindMerch,
		Dates:    f.dates(),
		Limit:    limit,
		Variants: variants,
	})
	require.NoError(t, err)
	return f.publish(t, org, e.ID)
}

// pendingOrder registers p for a variant and uploads a proof.
func (f *fixture) pendingOrder(t *testing.T, p services.Principal, eventID, variant string) string {
	t.Helper()
	tk, err := f.svc.Register(f.ctx, p, eventID, services.RegisterInput{Variant: variant})
	require.NoError(t, err)
	reg, err := f.svc.UploadProof(f.ctx, p, tk.TicketID, "proof.png", bytes.NewReader(pngBytes))
	require.NoError(t, err)
	require.Equal(t, models.RegPending, reg.Status)
	return tk.TicketID
}

func requireKind(t *testing.T, err error, kind services.Kind) *services.Error {
	t.Helper()
	require.Error(t, err)
	var se *services.Error
	require.True(t, errors.As(err, &se), "unexpected error type %T: %v", err, err)
	require.Equal(t, kind, se.Kind, se.Message)
	return se
}
