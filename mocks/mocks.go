// Package mocks provides in-memory repositories for tests. Conditional
// updates run under one mutex so they behave like single-document
// atomic operations.
package mocks

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"felicity/models"
	"felicity/utils"
)

func cloneEvent(e models.Event) models.Event {
	e.Tags = append([]string(nil), e.Tags...)
	if e.Normal != nil {
		n := *e.Normal
		n.Form = append([]models.FormField(nil), n.Form...)
		e.Normal = &n
	}
	if e.Merch != nil {
		m := *e.Merch
		m.Variants = append([]models.Variant(nil), m.Variants...)
		e.Merch = &m
	}
	return e
}

func cloneReg(r models.Registration) models.Registration {
	r.FormData = append([]models.FormAnswer(nil), r.FormData...)
	r.CheckinLog = append([]models.CheckinEntry(nil), r.CheckinLog...)
	if r.Payment != nil {
		p := *r.Payment
		r.Payment = &p
	}
	if r.CheckedInAt != nil {
		t := *r.CheckedInAt
		r.CheckedInAt = &t
	}
	return r
}

func contains[T comparable](s T, list []T) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}

// ===== events =====

type EventRepo struct {
	mu    sync.Mutex
	Items map[string]models.Event
}

func NewEventRepo() *EventRepo { return &EventRepo{Items: map[string]models.Event{}} }

func (m *EventRepo) Create(_ context.Context, e *models.Event) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Items[e.ID] = cloneEvent(*e)
	return nil
}

func (m *EventRepo) GetByID(_ context.Context, id string) (models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Items[id]
	if !ok {
		return models.Event{}, models.ErrNotFound
	}
	return cloneEvent(e), nil
}

func matches(e models.Event, f models.EventFilter) bool {
	if f.Kind != "" && e.Kind != f.Kind {
		return false
	}
	if len(f.Statuses) > 0 && !contains(e.Status, f.Statuses) {
		return false
	}
	if len(f.Tags) > 0 {
		hit := false
		for _, t := range e.Tags {
			hit = hit || contains(t, f.Tags)
		}
		if !hit {
			return false
		}
	}
	if len(f.Organizers) > 0 && !contains(e.OrganizerID, f.Organizers) {
		return false
	}
	if f.Eligibility != "" && e.Eligibility != f.Eligibility {
		return false
	}
	if f.Search != "" {
		q := strings.ToLower(f.Search)
		if !strings.Contains(strings.ToLower(e.Name), q) &&
			!strings.Contains(strings.ToLower(e.Description), q) &&
			!contains(e.OrganizerID, f.SearchOrganizers) {
			return false
		}
	}
	if f.From != nil && e.Dates.Start.Before(*f.From) {
		return false
	}
	if f.To != nil && e.Dates.Start.After(*f.To) {
		return false
	}
	return true
}

func (m *EventRepo) Find(_ context.Context, f models.EventFilter) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Event{}
	for _, e := range m.Items {
		if matches(e, f) {
			out = append(out, cloneEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].Dates.Start.Equal(out[j].Dates.Start) {
			return out[i].Dates.Start.Before(out[j].Dates.Start)
		}
		return out[i].ID < out[j].ID
	})
	if f.Skip > 0 {
		if f.Skip >= len(out) {
			return []models.Event{}, nil
		}
		out = out[f.Skip:]
	}
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (m *EventRepo) FindByIDs(_ context.Context, ids []string) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Event{}
	for _, id := range ids {
		if e, ok := m.Items[id]; ok {
			out = append(out, cloneEvent(e))
		}
	}
	return out, nil
}

func (m *EventRepo) TopByRegCount(_ context.Context, limit int, exclude []string) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Event{}
	for _, e := range m.Items {
		if e.Status == models.StatusPublished && !contains(e.ID, exclude) {
			out = append(out, cloneEvent(e))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].RegCount != out[j].RegCount {
			return out[i].RegCount > out[j].RegCount
		}
		return out[i].Dates.Start.Before(out[j].Dates.Start)
	})
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *EventRepo) ListByOrganizer(_ context.Context, organizerID int64) ([]models.Event, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.Event{}
	for _, e := range m.Items {
		if e.OrganizerID == organizerID {
			out = append(out, cloneEvent(e))
		}
	}
	return out, nil
}

func (m *EventRepo) Replace(_ context.Context, e *models.Event, expect models.EventStatus, withVariants bool) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.Items[e.ID]
	if !ok || cur.Status != expect || cur.RegCount > e.Limit {
		return false, nil
	}
	next := cloneEvent(*e)
	next.RegCount = cur.RegCount
	next.OrganizerID = cur.OrganizerID
	next.Kind = cur.Kind
	next.CreatedAt = cur.CreatedAt
	if next.Normal == nil {
		next.Normal = cur.Normal
	}
	switch {
	case next.Merch == nil:
		next.Merch = cur.Merch
	case !withVariants && cur.Merch != nil:
		next.Merch.Variants = append([]models.Variant(nil), cur.Merch.Variants...)
	}
	m.Items[e.ID] = next
	return true, nil
}

func (m *EventRepo) SetForm(_ context.Context, id string, form []models.FormField) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Items[id]
	if !ok || e.Kind != models.KindNormal || e.RegCount != 0 {
		return false, nil
	}
	e = cloneEvent(e)
	if e.Normal == nil {
		e.Normal = &models.NormalDetails{}
	}
	e.Normal.Form = append([]models.FormField(nil), form...)
	m.Items[id] = e
	return true, nil
}

func (m *EventRepo) ReserveSeat(_ context.Context, id string, now time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := m.Items[id]
	if !ok || e.Status != models.StatusPublished || e.Dates.Deadline.Before(now) || e.RegCount >= e.Limit {
		return false, nil
	}
	e.RegCount++
	m.Items[id] = e
	return true, nil
}

func (m *EventRepo) ReleaseSeat(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if e, ok := m.Items[id]; ok && e.RegCount > 0 {
		e.RegCount--
		m.Items[id] = e
	}
	return nil
}

func (m *EventRepo) adjustStock(id, variant string, delta int) bool {
	e, ok := m.Items[id]
	if !ok || e.Kind != models.KindMerch || e.Merch == nil {
		return false
	}
	e = cloneEvent(e)
	for i, v := range e.Merch.Variants {
		if v.Name != variant {
			continue
		}
		if delta < 0 && v.Stock <= 0 {
			return false
		}
		e.Merch.Variants[i].Stock += delta
		m.Items[id] = e
		return true
	}
	return false
}

func (m *EventRepo) DecrementStock(_ context.Context, id, variant string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.adjustStock(id, variant, -1), nil
}

func (m *EventRepo) RestoreStock(_ context.Context, id, variant string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.adjustStock(id, variant, 1)
	return nil
}

func (m *EventRepo) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Items[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Items, id)
	return nil
}

// ===== registrations =====

type RegRepo struct {
	mu    sync.Mutex
	Items map[string]models.Registration // by ticket id
}

func NewRegRepo() *RegRepo { return &RegRepo{Items: map[string]models.Registration{}} }

func (m *RegRepo) Insert(_ context.Context, r *models.Registration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Items[r.TicketID]; ok {
		return models.ErrTicketCollision
	}
	if r.Kind == models.KindNormal && r.Status == models.RegRegistered {
		for _, o := range m.Items {
			if o.UserID == r.UserID && o.EventID == r.EventID &&
				o.Kind == models.KindNormal && o.Status == models.RegRegistered {
				return models.ErrDuplicate
			}
		}
	}
	m.Items[r.TicketID] = cloneReg(*r)
	return nil
}

func (m *RegRepo) GetByTicket(_ context.Context, ticketID string) (models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Items[ticketID]
	if !ok {
		return models.Registration{}, models.ErrNotFound
	}
	return cloneReg(r), nil
}

func (m *RegRepo) FindByProof(_ context.Context, fileID string) (models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.Items {
		if r.Payment != nil && r.Payment.ProofID == fileID {
			return cloneReg(r), nil
		}
	}
	return models.Registration{}, models.ErrNotFound
}

func (m *RegRepo) filter(keep func(models.Registration) bool) []models.Registration {
	out := []models.Registration{}
	for _, r := range m.Items {
		if keep(r) {
			out = append(out, cloneReg(r))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].TicketID < out[j].TicketID
	})
	return out
}

func (m *RegRepo) ListByUser(_ context.Context, userID int64) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.filter(func(r models.Registration) bool { return r.UserID == userID })
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

func (m *RegRepo) ListByEvent(_ context.Context, eventID string, statuses []models.RegStatus) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(r models.Registration) bool {
		return r.EventID == eventID && (len(statuses) == 0 || contains(r.Status, statuses))
	}), nil
}

func (m *RegRepo) ListActive(_ context.Context, eventID string, userID int64) ([]models.Registration, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.filter(func(r models.Registration) bool {
		return r.EventID == eventID && r.UserID == userID && r.Active()
	}), nil
}

func (m *RegRepo) CountByEvent(ctx context.Context, eventID string, statuses []models.RegStatus) (int, error) {
	regs, _ := m.ListByEvent(ctx, eventID, statuses)
	return len(regs), nil
}

// update applies fn to the ticket when cond holds, all under the lock.
func (m *RegRepo) update(ticketID string, cond func(models.Registration) bool, fn func(*models.Registration)) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Items[ticketID]
	if !ok || !cond(r) {
		return false
	}
	r = cloneReg(r)
	fn(&r)
	m.Items[ticketID] = r
	return true
}

func (m *RegRepo) Transition(_ context.Context, ticketID string, from []models.RegStatus, to models.RegStatus) (bool, error) {
	return m.update(ticketID,
		func(r models.Registration) bool { return contains(r.Status, from) },
		func(r *models.Registration) { r.Status = to; r.UpdatedAt = time.Now().UTC() },
	), nil
}

func (m *RegRepo) AttachProof(_ context.Context, ticketID string, from []models.RegStatus, p models.Payment) (bool, error) {
	return m.update(ticketID,
		func(r models.Registration) bool { return contains(r.Status, from) },
		func(r *models.Registration) {
			r.Status = models.RegPending
			r.Payment = &p
			r.UpdatedAt = time.Now().UTC()
		},
	), nil
}

func (m *RegRepo) ClaimPayment(_ context.Context, ticketID, claim string, at, staleBefore time.Time) (bool, error) {
	return m.update(ticketID,
		func(r models.Registration) bool {
			if r.Status != models.RegPending {
				return false
			}
			p := r.Payment
			return p == nil || p.Claim == "" || (p.ClaimedAt != nil && p.ClaimedAt.Before(staleBefore))
		},
		func(r *models.Registration) {
			if r.Payment == nil {
				r.Payment = &models.Payment{}
			}
			r.Payment.Claim = claim
			r.Payment.ClaimedAt = &at
		},
	), nil
}

func (m *RegRepo) ReleaseClaim(_ context.Context, ticketID, claim string) error {
	m.update(ticketID,
		func(r models.Registration) bool { return r.Payment != nil && r.Payment.Claim == claim },
		func(r *models.Registration) { r.Payment.Claim, r.Payment.ClaimedAt = "", nil },
	)
	return nil
}

func (m *RegRepo) ResolvePayment(_ context.Context, ticketID, claim string, to models.RegStatus, by int64, note string, at time.Time) (bool, error) {
	return m.update(ticketID,
		func(r models.Registration) bool {
			return r.Status == models.RegPending && r.Payment != nil && r.Payment.Claim == claim
		},
		func(r *models.Registration) {
			r.Status = to
			r.Payment.ResolvedAt = &at
			r.Payment.ResolvedBy = by
			r.Payment.Note = note
			r.Payment.Claim, r.Payment.ClaimedAt = "", nil
			r.UpdatedAt = at
		},
	), nil
}

func (m *RegRepo) MarkCheckedIn(_ context.Context, ticketID string, admitted []models.RegStatus, at time.Time, entry models.CheckinEntry) (bool, error) {
	return m.update(ticketID,
		func(r models.Registration) bool { return !r.CheckedIn && contains(r.Status, admitted) },
		func(r *models.Registration) {
			r.CheckedIn = true
			r.CheckedInAt = &at
			r.CheckinLog = append(r.CheckinLog, entry)
			r.UpdatedAt = at
		},
	), nil
}

func (m *RegRepo) AppendCheckin(_ context.Context, ticketID string, entry models.CheckinEntry) error {
	ok := m.update(ticketID,
		func(models.Registration) bool { return true },
		func(r *models.Registration) { r.CheckinLog = append(r.CheckinLog, entry); r.UpdatedAt = entry.At },
	)
	if !ok {
		return models.ErrNotFound
	}
	return nil
}

func (m *RegRepo) DeleteByEvent(_ context.Context, eventID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var n int64
	for k, r := range m.Items {
		if r.EventID == eventID {
			delete(m.Items, k)
			n++
		}
	}
	return n, nil
}

func (m *RegRepo) TrendingEventIDs(_ context.Context, since time.Time, limit int) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	counts := map[string]int{}
	for _, r := range m.Items {
		if !r.CreatedAt.Before(since) && r.Status != models.RegCancelled {
			counts[r.EventID]++
		}
	}
	ids := make([]string, 0, len(counts))
	for id := range counts {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool {
		if counts[ids[i]] != counts[ids[j]] {
			return counts[ids[i]] > counts[ids[j]]
		}
		return ids[i] < ids[j]
	})
	if len(ids) > limit {
		ids = ids[:limit]
	}
	return ids, nil
}

// ===== users =====

type UserRepo struct {
	mu     sync.Mutex
	nextID int64
	Items  map[int64]models.User
}

func NewUserRepo() *UserRepo { return &UserRepo{Items: map[int64]models.User{}} }

func cloneUser(u models.User) models.User {
	if u.Participant != nil {
		p := *u.Participant
		p.Interests = append([]string(nil), p.Interests...)
		p.Following = append([]int64{}, p.Following...)
		u.Participant = &p
	}
	if u.Organizer != nil {
		o := *u.Organizer
		u.Organizer = &o
	}
	return u
}

func (m *UserRepo) Create(_ context.Context, u *models.User) error {
	hashed, err := utils.HashPassword(u.Password)
	if err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))
	for _, o := range m.Items {
		if o.Email == u.Email {
			return models.ErrEmailTaken
		}
	}
	m.nextID++
	u.ID = m.nextID
	u.Password = hashed
	u.CreatedAt = time.Now().UTC()
	m.Items[u.ID] = cloneUser(*u)
	return nil
}

func (m *UserRepo) ValidateCredentials(ctx context.Context, email, plain string) (models.User, error) {
	u, err := m.GetByEmail(ctx, email)
	if err != nil {
		return models.User{}, models.ErrInvalidLogin
	}
	if !utils.CheckPasswordHash(plain, u.Password) {
		return models.User{}, models.ErrInvalidLogin
	}
	return u, nil
}

func (m *UserRepo) GetByID(_ context.Context, id int64) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Items[id]
	if !ok {
		return models.User{}, models.ErrNotFound
	}
	return cloneUser(u), nil
}

func (m *UserRepo) GetByEmail(_ context.Context, email string) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	email = strings.ToLower(strings.TrimSpace(email))
	for _, u := range m.Items {
		if u.Email == email {
			return cloneUser(u), nil
		}
	}
	return models.User{}, models.ErrNotFound
}

func (m *UserRepo) ListByRole(_ context.Context, role models.Role) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []models.User{}
	for _, u := range m.Items {
		if u.Role == role {
			out = append(out, cloneUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *UserRepo) mutate(id int64, fn func(*models.User)) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.Items[id]
	if !ok {
		return models.ErrNotFound
	}
	u = cloneUser(u)
	fn(&u)
	m.Items[id] = u
	return nil
}

func (m *UserRepo) UpdateParticipant(_ context.Context, id int64, p models.ParticipantProfile) error {
	return m.mutate(id, func(u *models.User) {
		if u.Participant != nil {
			p.Following = u.Participant.Following
		}
		u.Participant = &p
	})
}

func (m *UserRepo) UpdateOrganizer(_ context.Context, id int64, o models.OrganizerProfile) error {
	return m.mutate(id, func(u *models.User) {
		if u.Organizer != nil {
			o.Disabled = u.Organizer.Disabled
		}
		u.Organizer = &o
	})
}

func (m *UserRepo) SetPassword(_ context.Context, id int64, plain string) error {
	hashed, err := utils.HashPassword(plain)
	if err != nil {
		return err
	}
	return m.mutate(id, func(u *models.User) { u.Password = hashed })
}

// SetPasswordHash mirrors the SQL update the reset repository runs.
func (m *UserRepo) SetPasswordHash(id int64, hash string) error {
	return m.mutate(id, func(u *models.User) { u.Password = hash })
}

func (m *UserRepo) SetDisabled(_ context.Context, id int64, disabled bool) error {
	return m.mutate(id, func(u *models.User) {
		if u.Organizer != nil {
			u.Organizer.Disabled = disabled
		}
	})
}

func (m *UserRepo) Delete(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.Items[id]; !ok {
		return models.ErrNotFound
	}
	delete(m.Items, id)
	for k, u := range m.Items {
		if u.Participant == nil {
			continue
		}
		u = cloneUser(u)
		kept := u.Participant.Following[:0]
		for _, f := range u.Participant.Following {
			if f != id {
				kept = append(kept, f)
			}
		}
		u.Participant.Following = kept
		m.Items[k] = u
	}
	return nil
}

func (m *UserRepo) ToggleFollow(_ context.Context, userID, organizerID int64) (bool, error) {
	following := false
	err := m.mutate(userID, func(u *models.User) {
		if u.Participant == nil {
			return
		}
		list := u.Participant.Following
		for i, f := range list {
			if f == organizerID {
				u.Participant.Following = append(list[:i:i], list[i+1:]...)
				return
			}
		}
		u.Participant.Following = append(list, organizerID)
		following = true
	})
	return following, err
}

// ===== password reset requests =====

type ResetRepo struct {
	mu    sync.Mutex
	Items map[uuid.UUID]models.ResetRequest
	// Users receives approved password hashes.
	Users *UserRepo
}

func NewResetRepo(users *UserRepo) *ResetRepo {
	return &ResetRepo{Items: map[uuid.UUID]models.ResetRequest{}, Users: users}
}

func (m *ResetRepo) Create(_ context.Context, r *models.ResetRequest) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, o := range m.Items {
		if o.OrganizerID == r.OrganizerID && o.Status == models.ResetPending {
			return models.ErrPendingExists
		}
	}
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	r.Status = models.ResetPending
	if r.CreatedAt.IsZero() {
		r.CreatedAt = time.Now().UTC()
	}
	m.Items[r.ID] = *r
	return nil
}

func (m *ResetRepo) GetByID(_ context.Context, id uuid.UUID) (models.ResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Items[id]
	if !ok {
		return models.ResetRequest{}, models.ErrNotFound
	}
	return r, nil
}

func (m *ResetRepo) sorted(keep func(models.ResetRequest) bool) []models.ResetRequest {
	out := []models.ResetRequest{}
	for _, r := range m.Items {
		if keep(r) {
			out = append(out, r)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.After(out[j].CreatedAt) })
	return out
}

func (m *ResetRepo) Latest(_ context.Context, organizerID int64) (models.ResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := m.sorted(func(r models.ResetRequest) bool { return r.OrganizerID == organizerID })
	if len(out) == 0 {
		return models.ResetRequest{}, models.ErrNotFound
	}
	return out[0], nil
}

func (m *ResetRepo) List(_ context.Context, status models.ResetStatus) ([]models.ResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.sorted(func(r models.ResetRequest) bool { return status == "" || r.Status == status }), nil
}

func (m *ResetRepo) Resolve(_ context.Context, id uuid.UUID, status models.ResetStatus, note string, by int64, at time.Time, passwordHash string) (models.ResetRequest, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Items[id]
	if !ok {
		return models.ResetRequest{}, models.ErrNotFound
	}
	if r.Status != models.ResetPending {
		return models.ResetRequest{}, models.ErrNotPending
	}
	if passwordHash != "" && m.Users != nil {
		if err := m.Users.SetPasswordHash(r.OrganizerID, passwordHash); err != nil {
			return models.ResetRequest{}, err
		}
	}
	r.Status, r.Note, r.ResolvedAt, r.ResolvedBy = status, note, &at, &by
	m.Items[id] = r
	return r, nil
}

func (m *ResetRepo) UpdateNote(_ context.Context, id uuid.UUID, note string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.Items[id]
	if !ok {
		return models.ErrNotFound
	}
	r.Note = note
	m.Items[id] = r
	return nil
}

func (m *ResetRepo) DeleteByOrganizer(_ context.Context, organizerID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for k, r := range m.Items {
		if r.OrganizerID == organizerID {
			delete(m.Items, k)
		}
	}
	return nil
}
