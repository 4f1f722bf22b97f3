package services

import (
	"bytes"
	"context"
	"errors"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"felicity/logger"
	"felicity/models"
	"felicity/utils"
)

const ticketAttempts = 3

type RegisterInput struct {
	FormData []models.FormAnswer `json:"formdata"`
	Variant  string              `json:"variant"`
}

type EventSnapshot struct {
	ID    string            `json:"id"`
	Name  string            `json:"name"`
	Type  models.EventKind  `json:"type"`
	Dates models.EventDates `json:"dates"`
}

func snapshot(e models.Event) EventSnapshot {
	return EventSnapshot{ID: e.ID, Name: e.Name, Type: e.Kind, Dates: e.Dates}
}

type Ticket struct {
	TicketID string           `json:"ticketid"`
	Status   models.RegStatus `json:"status"`
	Event    EventSnapshot    `json:"event"`
}

func eligible(e models.Event, u models.User) bool {
	if u.Participant == nil {
		return false
	}
	switch e.Eligibility {
	case models.EligibleIIIT:
		return u.Participant.Affiliation == models.AffiliationIIIT
	case models.EligibleExternal:
		return u.Participant.Affiliation == models.AffiliationExternal
	}
	return true
}

// openForRegistration reports why an event cannot take a registration now.
func openForRegistration(e models.Event, now time.Time) *Error {
	switch {
	case e.Status != models.StatusPublished:
		return Invalid("event not open for registration")
	case now.After(e.Dates.Deadline):
		return Invalid("registration deadline passed")
	case e.RegCount >= e.Limit:
		return Conflict("event is full")
	}
	return nil
}

// collectAnswers orders answers by the form and names the first required
// field left blank.
func collectAnswers(form []models.FormField, given []models.FormAnswer) ([]models.FormAnswer, *Error) {
	known := map[string]bool{}
	for _, f := range form {
		known[strings.ToLower(strings.TrimSpace(f.Label))] = true
	}
	byLabel := map[string]string{}
	for _, a := range given {
		key := strings.ToLower(strings.TrimSpace(a.Label))
		if !known[key] {
			return nil, Invalid("unknown form field", field(a.Label, "is not part of this event's form"))
		}
		byLabel[key] = strings.TrimSpace(a.Value)
	}

	out := []models.FormAnswer{}
	for _, f := range form {
		v := byLabel[strings.ToLower(strings.TrimSpace(f.Label))]
		if v == "" {
			if f.Required {
				return nil, Invalid(f.Label+" is required", field(f.Label, "is required"))
			}
			continue
		}
		if issue := checkAnswer(f, v); issue != nil {
			return nil, Invalid("invalid answer for "+f.Label, *issue)
		}
		out = append(out, models.FormAnswer{Label: f.Label, Value: v})
	}
	return out, nil
}

var emailPattern = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)

func checkAnswer(f models.FormField, v string) *Issue {
	switch f.Type {
	case "number":
		if _, err := strconv.ParseFloat(v, 64); err != nil {
			is := field(f.Label, "must be a number")
			return &is
		}
	case "email":
		if !emailPattern.MatchString(v) {
			is := field(f.Label, "must be an email address")
			return &is
		}
	case "select", "radio":
		for _, o := range f.Options {
			if o == v {
				return nil
			}
		}
		is := field(f.Label, "must be one of "+strings.Join(f.Options, ", "))
		return &is
	}
	return nil
}

// Register issues a ticket. Business checks run first; the seat is then
// taken with a single conditional increment and released again if the
// registration cannot be stored.
func (s *Service) Register(ctx context.Context, p Principal, eventID string, in RegisterInput) (Ticket, error) {
	if !p.IsParticipant() {
		return Ticket{}, Forbidden("only participants can register")
	}
	e, err := s.loadEvent(ctx, p, eventID)
	if err != nil {
		return Ticket{}, err
	}
	now := s.now()
	if reason := openForRegistration(e, now); reason != nil {
		return Ticket{}, reason
	}
	u, err := s.users.GetByID(ctx, p.UserID)
	if err != nil {
		return Ticket{}, Internal("register", err)
	}
	if !eligible(e, u) {
		return Ticket{}, Forbidden("not eligible for this event")
	}

	active, err := s.regs.ListActive(ctx, eventID, p.UserID)
	if err != nil {
		return Ticket{}, Internal("register", err)
	}
	reg := models.Registration{
		UserID:     p.UserID,
		EventID:    eventID,
		Kind:       e.Kind,
		Status:     models.RegRegistered,
		CheckinLog: []models.CheckinEntry{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	switch e.Kind {
	case models.KindNormal:
		if len(active) > 0 {
			return Ticket{}, &Error{Kind: KindConflict, Message: "already registered", TicketID: active[0].TicketID}
		}
		var form []models.FormField
		if e.Normal != nil {
			form = e.Normal.Form
		}
		answers, verr := collectAnswers(form, in.FormData)
		if verr != nil {
			return Ticket{}, verr
		}
		reg.FormData = answers
	case models.KindMerch:
		if e.Merch != nil && len(active) >= e.Merch.PurchaseLimit {
			return Ticket{}, Conflict("purchase limit reached")
		}
		v, ok := e.Variant(in.Variant)
		if !ok {
			return Ticket{}, Invalid("unknown variant", field("variant", "must name one of the event's variants"))
		}
		if v.Stock <= 0 {
			return Ticket{}, Conflict("variant out of stock")
		}
		reg.Variant = v.Name
		reg.FormData = []models.FormAnswer{{Label: "variant", Value: v.Name}}
	}

	ok, err := s.events.ReserveSeat(ctx, eventID, now)
	if err != nil {
		return Ticket{}, Internal("reserve seat", err)
	}
	if !ok {
		latest, err := s.events.GetByID(ctx, eventID)
		if err != nil {
			return Ticket{}, NotFound("event not found")
		}
		if reason := openForRegistration(latest, now); reason != nil {
			return Ticket{}, reason
		}
		return Ticket{}, Conflict("event is full")
	}

	if err := s.insertTicket(ctx, &reg); err != nil {
		if rerr := s.events.ReleaseSeat(ctx, eventID); rerr != nil {
			logger.Error.Printf("[register] release seat on %s: %v", eventID, rerr)
		}
		if errors.Is(err, models.ErrDuplicate) {
			existing, lerr := s.regs.ListActive(ctx, eventID, p.UserID)
			if lerr == nil && len(existing) > 0 {
				return Ticket{}, &Error{Kind: KindConflict, Message: "already registered", TicketID: existing[0].TicketID}
			}
			return Ticket{}, Conflict("already registered")
		}
		return Ticket{}, Internal("insert registration", err)
	}

	s.purgeEvent(ctx, eventID)
	return Ticket{TicketID: reg.TicketID, Status: reg.Status, Event: snapshot(e)}, nil
}

func (s *Service) insertTicket(ctx context.Context, reg *models.Registration) error {
	var err error
	for i := 0; i < ticketAttempts; i++ {
		reg.ID = uuid.NewString()
		reg.TicketID = utils.NewTicketID()
		err = s.regs.Insert(ctx, reg)
		if !errors.Is(err, models.ErrTicketCollision) {
			return err
		}
	}
	return err
}

// CancelRegistration lets a participant give up a ticket that has not
// entered payment review or been purchased.
func (s *Service) CancelRegistration(ctx context.Context, p Principal, ticketID string) error {
	reg, err := s.ticket(ctx, ticketID)
	if err != nil {
		return err
	}
	if reg.UserID != p.UserID {
		return Forbidden("not your ticket")
	}
	from := []models.RegStatus{models.RegRegistered}
	if reg.Kind == models.KindMerch {
		from = append(from, models.RegRejected)
	}
	ok, err := s.regs.Transition(ctx, ticketID, from, models.RegCancelled)
	if err != nil {
		return Internal("cancel registration", err)
	}
	if !ok {
		return Conflict("ticket cannot be cancelled while " + string(reg.Status))
	}
	if err := s.events.ReleaseSeat(ctx, reg.EventID); err != nil {
		return Internal("release seat", err)
	}
	s.purgeEvent(ctx, reg.EventID)
	return nil
}

func (s *Service) ticket(ctx context.Context, ticketID string) (models.Registration, error) {
	reg, err := s.regs.GetByTicket(ctx, ticketID)
	if errors.Is(err, models.ErrNotFound) {
		return models.Registration{}, NotFound("ticket not found")
	}
	if err != nil {
		return models.Registration{}, Internal("get ticket", err)
	}
	return reg, nil
}

type TicketView struct {
	models.Registration
	Event *EventSnapshot `json:"eventInfo,omitempty"`
}

func (s *Service) MyRegistrations(ctx context.Context, p Principal) ([]TicketView, error) {
	regs, err := s.regs.ListByUser(ctx, p.UserID)
	if err != nil {
		return nil, Internal("my registrations", err)
	}
	events, err := s.eventSummaries(ctx, regs)
	if err != nil {
		return nil, Internal("my registrations", err)
	}
	out := make([]TicketView, 0, len(regs))
	for _, r := range regs {
		v := TicketView{Registration: r}
		if e, ok := events[r.EventID]; ok {
			snap := snapshot(e)
			v.Event = &snap
		}
		out = append(out, v)
	}
	return out, nil
}

// GetTicket is visible to the ticket holder, the event's organizer and admins.
func (s *Service) GetTicket(ctx context.Context, p Principal, ticketID string) (TicketView, error) {
	reg, err := s.ticket(ctx, ticketID)
	if err != nil {
		return TicketView{}, err
	}
	e, err := s.events.GetByID(ctx, reg.EventID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return TicketView{}, Internal("get ticket", err)
	}
	if reg.UserID != p.UserID && !p.IsAdmin() && !(err == nil && p.owns(e)) {
		return TicketView{}, Forbidden("not allowed to view this ticket")
	}
	v := TicketView{Registration: reg}
	if err == nil {
		snap := snapshot(e)
		v.Event = &snap
	}
	return v, nil
}

// TicketQR renders the ticket code for the same audience as GetTicket.
func (s *Service) TicketQR(ctx context.Context, p Principal, ticketID string) ([]byte, error) {
	if _, err := s.GetTicket(ctx, p, ticketID); err != nil {
		return nil, err
	}
	png, err := utils.TicketQR(ticketID, 256, nil)
	if err != nil {
		return nil, Internal("ticket qr", err)
	}
	return png, nil
}

type ParticipantRow struct {
	TicketID     string              `json:"ticketid"`
	Status       models.RegStatus    `json:"status"`
	FirstName    string              `json:"firstname"`
	LastName     string              `json:"lastname"`
	Email        string              `json:"email"`
	Contact      string              `json:"contact"`
	College      string              `json:"college"`
	Type         string              `json:"type"`
	Variant      string              `json:"variant,omitempty"`
	CheckedIn    bool                `json:"checkin"`
	CheckedInAt  *time.Time          `json:"checkinat,omitempty"`
	RegisteredAt time.Time           `json:"registeredat"`
	FormData     []models.FormAnswer `json:"formdata"`
	Payment      *models.Payment     `json:"payment,omitempty"`
}

func (s *Service) participantRows(ctx context.Context, regs []models.Registration) ([]ParticipantRow, error) {
	users := map[int64]models.User{}
	rows := make([]ParticipantRow, 0, len(regs))
	for _, r := range regs {
		u, ok := users[r.UserID]
		if !ok {
			var err error
			u, err = s.users.GetByID(ctx, r.UserID)
			if err != nil && !errors.Is(err, models.ErrNotFound) {
				return nil, err
			}
			users[r.UserID] = u
		}
		row := ParticipantRow{
			TicketID:     r.TicketID,
			Status:       r.Status,
			Email:        u.Email,
			Variant:      r.Variant,
			CheckedIn:    r.CheckedIn,
			CheckedInAt:  r.CheckedInAt,
			RegisteredAt: r.CreatedAt,
			FormData:     r.FormData,
			Payment:      r.Payment,
		}
		if pp := u.Participant; pp != nil {
			row.FirstName, row.LastName = pp.FirstName, pp.LastName
			row.Contact, row.College, row.Type = pp.Contact, pp.College, string(pp.Affiliation)
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func (s *Service) ListParticipants(ctx context.Context, p Principal, eventID string) ([]ParticipantRow, error) {
	if _, err := s.managedEvent(ctx, p, eventID); err != nil {
		return nil, err
	}
	return s.activeParticipants(ctx, eventID)
}

func (s *Service) activeParticipants(ctx context.Context, eventID string) ([]ParticipantRow, error) {
	regs, err := s.regs.ListByEvent(ctx, eventID, models.ActiveStatuses)
	if err != nil {
		return nil, Internal("list participants", err)
	}
	rows, err := s.participantRows(ctx, regs)
	if err != nil {
		return nil, Internal("list participants", err)
	}
	return rows, nil
}

var participantHeader = []string{
	"ticketid", "firstname", "lastname", "email", "contact",
	"college", "type", "status", "variant", "paymentproof", "paymentuploadedat",
	"checkin", "registeredat",
}

// formColumns lists the event's form labels, then any other labels
// answered by at least one registration, in first-seen order.
func formColumns(e models.Event, rows []ParticipantRow) []string {
	var cols []string
	seen := map[string]bool{}
	if e.Normal != nil {
		for _, f := range e.Normal.Form {
			if !seen[f.Label] {
				seen[f.Label] = true
				cols = append(cols, f.Label)
			}
		}
	}
	for _, r := range rows {
		for _, a := range r.FormData {
			if !seen[a.Label] {
				seen[a.Label] = true
				cols = append(cols, a.Label)
			}
		}
	}
	return cols
}

func formatTime(t *time.Time) string {
	if t == nil || t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}

var unsafeFilename = regexp.MustCompile(`[^A-Za-z0-9._ -]+`)

func csvFilename(name, suffix string) string {
	base := strings.TrimSpace(unsafeFilename.ReplaceAllString(name, "-"))
	if base == "" {
		base = "event"
	}
	return base + "-" + suffix + ".csv"
}

// Export is a rendered CSV attachment.
type Export struct {
	Filename string
	Body     []byte
}

func (s *Service) ExportParticipants(ctx context.Context, p Principal, eventID string) (Export, error) {
	e, err := s.managedEvent(ctx, p, eventID)
	if err != nil {
		return Export{}, err
	}
	rows, err := s.activeParticipants(ctx, eventID)
	if err != nil {
		return Export{}, err
	}
	cols := formColumns(e, rows)
	header := append(append([]string{}, participantHeader...), cols...)
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		rec := []string{
			r.TicketID, r.FirstName, r.LastName, r.Email, r.Contact,
			r.College, r.Type, string(r.Status), r.Variant, "", "",
			strconv.FormatBool(r.CheckedIn), formatTime(&r.RegisteredAt),
		}
		if r.Payment != nil {
			rec[9], rec[10] = r.Payment.Proof, formatTime(&r.Payment.UploadedAt)
		}
		answers := map[string]string{}
		for _, a := range r.FormData {
			answers[a.Label] = a.Value
		}
		for _, c := range cols {
			rec = append(rec, answers[c])
		}
		records = append(records, rec)
	}
	var buf bytes.Buffer
	if err := utils.WriteCSV(&buf, header, records); err != nil {
		return Export{}, Internal("export participants", err)
	}
	return Export{Filename: csvFilename(e.Name, "participants"), Body: buf.Bytes()}, nil
}
