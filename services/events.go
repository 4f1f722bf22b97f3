package services

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"felicity/models"
)

const (
	trendingWindow = 24 * time.Hour
	trendingSize   = 5
	trendingScan   = 20
	defaultPage    = 20
	maxPage        = 100
)

var formFieldTypes = map[string]bool{
	"text": true, "textarea": true, "number": true, "email": true,
	"date": true, "select": true, "radio": true, "checkbox": true,
}

// choice fields need options
var choiceTypes = map[string]bool{"select": true, "radio": true, "checkbox": true}

// EventInput is the create payload. Fee and FormSchema belong to Normal
// events, Variants and PurchaseLimit to Merchandise events.
type EventInput struct {
	Name          string             `json:"name"`
	Description   string             `json:"description"`
	Type          models.EventKind   `json:"type"`
	Eligibility   models.Eligibility `json:"eligibility"`
	Dates         models.EventDates  `json:"dates"`
	Limit         int                `json:"limit"`
	Tags          []string           `json:"tags"`
	Fee           *float64           `json:"fee"`
	FormSchema    []models.FormField `json:"formschema"`
	Variants      []models.Variant   `json:"variants"`
	PurchaseLimit *int               `json:"purchaseLimit"`
}

type DatesPatch struct {
	Start    *time.Time `json:"start"`
	End      *time.Time `json:"end"`
	Deadline *time.Time `json:"deadline"`
}

// EventPatch carries only the keys present in an update request.
type EventPatch struct {
	Name          *string             `json:"name"`
	Description   *string             `json:"description"`
	Type          *models.EventKind   `json:"type"`
	Eligibility   *models.Eligibility `json:"eligibility"`
	Dates         *DatesPatch         `json:"dates"`
	Limit         *int                `json:"limit"`
	Tags          *[]string           `json:"tags"`
	Status        *models.EventStatus `json:"status"`
	Fee           *float64            `json:"fee"`
	FormSchema    *[]models.FormField `json:"formschema"`
	Variants      *[]models.Variant   `json:"variants"`
	PurchaseLimit *int                `json:"purchaseLimit"`
}

func (p EventPatch) keys() []string {
	var k []string
	add := func(present bool, name string) {
		if present {
			k = append(k, name)
		}
	}
	add(p.Name != nil, "name")
	add(p.Description != nil, "description")
	add(p.Type != nil, "type")
	add(p.Eligibility != nil, "eligibility")
	add(p.Dates != nil, "dates")
	add(p.Limit != nil, "limit")
	add(p.Tags != nil, "tags")
	add(p.Status != nil, "status")
	add(p.Fee != nil, "fee")
	add(p.FormSchema != nil, "formschema")
	add(p.Variants != nil, "variants")
	add(p.PurchaseLimit != nil, "purchaseLimit")
	return k
}

// publishedEditable lists what may change once an event is live.
var publishedEditable = map[string]bool{
	"description": true, "dates": true, "limit": true,
	"fee": true, "status": true, "variants": true,
}

var transitions = map[models.EventStatus][]models.EventStatus{
	models.StatusDraft:     {models.StatusPublished, models.StatusCancelled},
	models.StatusPublished: {models.StatusOngoing, models.StatusCompleted, models.StatusCancelled},
	models.StatusOngoing:   {models.StatusCompleted, models.StatusCancelled},
}

func validStatus(s models.EventStatus) bool {
	switch s {
	case models.StatusDraft, models.StatusPublished, models.StatusOngoing,
		models.StatusCompleted, models.StatusCancelled:
		return true
	}
	return false
}

func canTransition(from, to models.EventStatus) bool {
	if from == to {
		return true
	}
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

func cleanTags(tags []string) []string {
	out := []string{}
	seen := map[string]bool{}
	for _, t := range tags {
		t = strings.ToLower(strings.TrimSpace(t))
		if t == "" || seen[t] {
			continue
		}
		seen[t] = true
		out = append(out, t)
	}
	return out
}

func validateDates(d models.EventDates) []Issue {
	var issues []Issue
	if d.Start.IsZero() {
		issues = append(issues, field("dates.start", "is required"))
	}
	if d.End.IsZero() {
		issues = append(issues, field("dates.end", "is required"))
	}
	if d.Deadline.IsZero() {
		issues = append(issues, field("dates.deadline", "is required"))
	}
	if len(issues) > 0 {
		return issues
	}
	if d.Deadline.After(d.Start) {
		issues = append(issues, field("dates.deadline", "must not be after the start"))
	}
	if !d.Start.Before(d.End) {
		issues = append(issues, field("dates.end", "must be after the start"))
	}
	return issues
}

func validateForm(fields []models.FormField) []Issue {
	var issues []Issue
	seen := map[string]bool{}
	for i, f := range fields {
		name := fmt.Sprintf("formschema[%d]", i)
		label := strings.TrimSpace(f.Label)
		switch {
		case label == "":
			issues = append(issues, field(name+".label", "is required"))
		case seen[strings.ToLower(label)]:
			issues = append(issues, field(name+".label", "duplicate label "+label))
		}
		seen[strings.ToLower(label)] = true
		if !formFieldTypes[f.Type] {
			issues = append(issues, field(name+".type", "unknown field type "+strconv.Quote(f.Type)))
		}
		if choiceTypes[f.Type] && len(f.Options) == 0 {
			issues = append(issues, field(name+".options", "required for "+f.Type+" fields"))
		}
	}
	return issues
}

func validateVariants(vs []models.Variant) []Issue {
	if len(vs) == 0 {
		return []Issue{field("variants", "at least one variant is required")}
	}
	var issues []Issue
	seen := map[string]bool{}
	for i, v := range vs {
		name := fmt.Sprintf("variants[%d]", i)
		switch {
		case strings.TrimSpace(v.Name) == "":
			issues = append(issues, field(name+".name", "is required"))
		case seen[v.Name]:
			issues = append(issues, field(name+".name", "duplicate variant "+v.Name))
		}
		seen[v.Name] = true
		if v.Stock < 0 {
			issues = append(issues, field(name+".stock", "must be >= 0"))
		}
		if v.Price < 0 {
			issues = append(issues, field(name+".price", "must be >= 0"))
		}
	}
	return issues
}

func validEligibility(e models.Eligibility) bool {
	switch e {
	case models.EligibleAll, models.EligibleIIIT, models.EligibleExternal:
		return true
	}
	return false
}

// validateEvent checks the invariants every stored event satisfies.
func validateEvent(e models.Event) []Issue {
	var issues []Issue
	if strings.TrimSpace(e.Name) == "" {
		issues = append(issues, field("name", "is required"))
	}
	if !validEligibility(e.Eligibility) {
		issues = append(issues, field("eligibility", "must be one of all, iiit, external"))
	}
	if e.Limit <= 0 {
		issues = append(issues, field("limit", "must be a positive integer"))
	}
	issues = append(issues, validateDates(e.Dates)...)

	switch e.Kind {
	case models.KindNormal:
		if e.Normal == nil || e.Merch != nil {
			issues = append(issues, field("type", "normal events take fee and formschema only"))
			break
		}
		if e.Normal.Fee < 0 {
			issues = append(issues, field("fee", "must be >= 0"))
		}
		issues = append(issues, validateForm(e.Normal.Form)...)
	case models.KindMerch:
		if e.Merch == nil || e.Normal != nil {
			issues = append(issues, field("type", "merchandise events take variants and purchaseLimit only"))
			break
		}
		issues = append(issues, validateVariants(e.Merch.Variants)...)
		if e.Merch.PurchaseLimit < 1 {
			issues = append(issues, field("purchaseLimit", "must be at least 1"))
		}
	default:
		issues = append(issues, field("type", "must be Normal or Merchandise"))
	}
	return issues
}

func (s *Service) CreateEvent(ctx context.Context, p Principal, in EventInput) (models.Event, error) {
	if !p.IsOrganizer() {
		return models.Event{}, Forbidden("only organizers can create events")
	}
	now := s.now()
	e := models.Event{
		ID:          uuid.NewString(),
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Kind:        in.Type,
		Eligibility: in.Eligibility,
		Dates:       in.Dates,
		Limit:       in.Limit,
		Tags:        cleanTags(in.Tags),
		Status:      models.StatusDraft,
		OrganizerID: p.UserID,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if e.Eligibility == "" {
		e.Eligibility = models.EligibleAll
	}

	var issues []Issue
	switch in.Type {
	case models.KindNormal:
		if in.Variants != nil || in.PurchaseLimit != nil {
			issues = append(issues, field("variants", "not allowed on normal events"))
		}
		e.Normal = &models.NormalDetails{Form: in.FormSchema}
		if in.Fee != nil {
			e.Normal.Fee = *in.Fee
		}
		if e.Normal.Form == nil {
			e.Normal.Form = []models.FormField{}
		}
	case models.KindMerch:
		if in.Fee != nil || in.FormSchema != nil {
			issues = append(issues, field("fee", "fee and formschema are not allowed on merchandise events"))
		}
		e.Merch = &models.MerchDetails{Variants: in.Variants, PurchaseLimit: 1}
		if in.PurchaseLimit != nil {
			e.Merch.PurchaseLimit = *in.PurchaseLimit
		}
	}
	issues = append(issues, validateEvent(e)...)
	if len(issues) > 0 {
		return models.Event{}, Invalid("invalid event", issues...)
	}

	if err := s.events.Create(ctx, &e); err != nil {
		return models.Event{}, Internal("create event", err)
	}
	s.purgeEvent(ctx, e.ID)
	return e, nil
}

// loadEvent fetches an event and hides unpublished ones from non-managers.
func (s *Service) loadEvent(ctx context.Context, p Principal, id string) (models.Event, error) {
	e, err := s.events.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) {
		return models.Event{}, NotFound("event not found")
	}
	if err != nil {
		return models.Event{}, Internal("get event", err)
	}
	if e.Status == models.StatusDraft && !p.manages(e) {
		return models.Event{}, NotFound("event not found")
	}
	return e, nil
}

// managedEvent fetches an event the caller owns (or, as admin, oversees).
func (s *Service) managedEvent(ctx context.Context, p Principal, id string) (models.Event, error) {
	if p.Anonymous() {
		return models.Event{}, Unauthenticated("authentication required")
	}
	e, err := s.loadEvent(ctx, p, id)
	if err != nil {
		return models.Event{}, err
	}
	if !p.manages(e) {
		return models.Event{}, Forbidden("not your event")
	}
	return e, nil
}

func (s *Service) GetEvent(ctx context.Context, p Principal, id string) (models.Event, error) {
	return s.loadEvent(ctx, p, id)
}

func applyDraftPatch(e *models.Event, patch EventPatch) {
	if patch.Name != nil {
		e.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Description != nil {
		e.Description = *patch.Description
	}
	if patch.Eligibility != nil {
		e.Eligibility = *patch.Eligibility
	}
	if patch.Tags != nil {
		e.Tags = cleanTags(*patch.Tags)
	}
	if d := patch.Dates; d != nil {
		if d.Start != nil {
			e.Dates.Start = *d.Start
		}
		if d.End != nil {
			e.Dates.End = *d.End
		}
	}
	if patch.FormSchema != nil && e.Normal != nil {
		e.Normal.Form = *patch.FormSchema
	}
	if patch.PurchaseLimit != nil && e.Merch != nil {
		e.Merch.PurchaseLimit = *patch.PurchaseLimit
	}
}

// UpdateEvent applies a patch according to the event's current status:
// drafts accept any field, published events a fixed whitelist, and
// ongoing/completed events a lone status change.
func (s *Service) UpdateEvent(ctx context.Context, p Principal, id string, patch EventPatch) (models.Event, error) {
	cur, err := s.managedEvent(ctx, p, id)
	if err != nil {
		return models.Event{}, err
	}
	keys := patch.keys()
	if len(keys) == 0 {
		return models.Event{}, Invalid("no fields to update")
	}
	if patch.Type != nil && *patch.Type != cur.Kind {
		return models.Event{}, Invalid("event type cannot be changed", field("type", "is fixed at creation"))
	}

	switch cur.Status {
	case models.StatusDraft:
	case models.StatusPublished:
		var issues []Issue
		for _, k := range keys {
			if !publishedEditable[k] && k != "type" {
				issues = append(issues, field(k, "cannot be edited after publishing"))
			}
		}
		if d := patch.Dates; d != nil && (d.Start != nil || d.End != nil) {
			issues = append(issues, field("dates", "only the deadline can be edited after publishing"))
		}
		if len(issues) > 0 {
			return models.Event{}, Invalid("field not editable for published event", issues...)
		}
	case models.StatusOngoing, models.StatusCompleted:
		if len(keys) != 1 || patch.Status == nil {
			return models.Event{}, Invalid("only status can be changed for "+string(cur.Status)+" events",
				field("status", "must be the only field"))
		}
	default:
		return models.Event{}, Invalid("event cannot be edited")
	}

	next := cur
	if cur.Normal != nil {
		n := *cur.Normal
		next.Normal = &n
	}
	if cur.Merch != nil {
		m := *cur.Merch
		next.Merch = &m
	}
	var issues []Issue
	if cur.Status == models.StatusDraft {
		applyDraftPatch(&next, patch)
	}
	if patch.Description != nil {
		next.Description = *patch.Description
	}
	if patch.Dates != nil && patch.Dates.Deadline != nil {
		next.Dates.Deadline = *patch.Dates.Deadline
	}
	if patch.Limit != nil {
		next.Limit = *patch.Limit
		if next.Limit < cur.RegCount {
			issues = append(issues, field("limit", fmt.Sprintf("cannot be below current registrations (%d)", cur.RegCount)))
		}
	}
	if patch.Fee != nil {
		if next.Normal == nil {
			issues = append(issues, field("fee", "only normal events have a fee"))
		} else {
			next.Normal.Fee = *patch.Fee
		}
	}
	if patch.FormSchema != nil && next.Normal == nil {
		issues = append(issues, field("formschema", "only normal events have a form"))
	}
	if patch.Variants != nil {
		if next.Merch == nil {
			issues = append(issues, field("variants", "only merchandise events have variants"))
		} else {
			next.Merch.Variants = *patch.Variants
		}
	}
	if patch.PurchaseLimit != nil && next.Merch == nil {
		issues = append(issues, field("purchaseLimit", "only merchandise events have a purchase limit"))
	}
	if patch.Status != nil {
		if !canTransition(cur.Status, *patch.Status) {
			issues = append(issues, field("status",
				fmt.Sprintf("cannot move from %s to %s", cur.Status, *patch.Status)))
		}
		next.Status = *patch.Status
	}
	issues = append(issues, validateEvent(next)...)
	if len(issues) > 0 {
		return models.Event{}, Invalid("invalid event update", issues...)
	}

	next.UpdatedAt = s.now()
	ok, err := s.events.Replace(ctx, &next, cur.Status, patch.Variants != nil)
	if err != nil {
		return models.Event{}, Internal("update event", err)
	}
	if !ok {
		latest, err := s.events.GetByID(ctx, id)
		switch {
		case errors.Is(err, models.ErrNotFound):
			return models.Event{}, NotFound("event not found")
		case err != nil:
			return models.Event{}, Internal("update event", err)
		case latest.RegCount > next.Limit:
			return models.Event{}, Invalid("invalid event update",
				field("limit", fmt.Sprintf("cannot be below current registrations (%d)", latest.RegCount)))
		default:
			return models.Event{}, Conflict("event was modified concurrently, retry")
		}
	}
	next.RegCount = cur.RegCount
	s.purgeEvent(ctx, id)
	if next.Merch != nil && patch.Variants == nil {
		// stock may have moved since cur was read
		if latest, err := s.events.GetByID(ctx, id); err == nil {
			return latest, nil
		}
	}
	return next, nil
}

// DeleteEvent removes the event and then every registration referencing it.
// The event goes first so no seat can be reserved mid-cascade.
func (s *Service) DeleteEvent(ctx context.Context, p Principal, id string) error {
	if _, err := s.managedEvent(ctx, p, id); err != nil {
		return err
	}
	return s.deleteEventCascade(ctx, id)
}

func (s *Service) deleteEventCascade(ctx context.Context, id string) error {
	if err := s.events.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return Internal("delete event", err)
	}
	if _, err := s.regs.DeleteByEvent(ctx, id); err != nil {
		return Internal("delete registrations", err)
	}
	s.purgeEvent(ctx, id)
	return nil
}

// BrowseParams is bound from the query string.
type BrowseParams struct {
	Type        string `form:"type"`
	Status      string `form:"status"`
	Search      string `form:"search"`
	Tags        string `form:"tags"`
	Organizer   int64  `form:"organizer"`
	Eligibility string `form:"eligibility"`
	DateFrom    string `form:"dateFrom"`
	DateTo      string `form:"dateTo"`
	Following   string `form:"following"`
	Mine        bool   `form:"mine"`
	Limit       int    `form:"limit"`
	Skip        int    `form:"skip"`
}

func parseDateParam(name, v string, endOfDay bool) (*time.Time, *Issue) {
	if v == "" {
		return nil, nil
	}
	if t, err := time.Parse(time.RFC3339, v); err == nil {
		return &t, nil
	}
	t, err := time.Parse("2006-01-02", v)
	if err != nil {
		is := field(name, "must be RFC3339 or YYYY-MM-DD")
		return nil, &is
	}
	if endOfDay {
		t = t.Add(24*time.Hour - time.Nanosecond)
	}
	return &t, nil
}

func splitList(v string) []string {
	var out []string
	for _, part := range strings.Split(v, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func (s *Service) BrowseEvents(ctx context.Context, p Principal, q BrowseParams) ([]models.Event, error) {
	f := models.EventFilter{
		Search: strings.TrimSpace(q.Search),
		Limit:  q.Limit,
		Skip:   q.Skip,
	}
	var issues []Issue

	switch models.EventKind(q.Type) {
	case "", models.KindNormal, models.KindMerch:
		f.Kind = models.EventKind(q.Type)
	default:
		issues = append(issues, field("type", "must be Normal or Merchandise"))
	}
	if q.Eligibility != "" {
		if !validEligibility(models.Eligibility(q.Eligibility)) {
			issues = append(issues, field("eligibility", "must be one of all, iiit, external"))
		}
		f.Eligibility = models.Eligibility(q.Eligibility)
	}
	var is *Issue
	if f.From, is = parseDateParam("dateFrom", q.DateFrom, false); is != nil {
		issues = append(issues, *is)
	}
	if f.To, is = parseDateParam("dateTo", q.DateTo, true); is != nil {
		issues = append(issues, *is)
	}
	if q.Tags != "" {
		f.Tags = cleanTags(splitList(q.Tags))
	}
	if q.Limit < 0 || q.Skip < 0 {
		issues = append(issues, field("limit", "limit and skip must be >= 0"))
	}
	if f.Limit == 0 {
		f.Limit = defaultPage
	}
	if f.Limit > maxPage {
		f.Limit = maxPage
	}

	switch {
	case q.Organizer != 0:
		f.Organizers = []int64{q.Organizer}
	case q.Following != "":
		for _, raw := range splitList(q.Following) {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				issues = append(issues, field("following", "must be comma-separated organizer ids"))
				break
			}
			f.Organizers = append(f.Organizers, id)
		}
	}

	own := p.IsOrganizer() && (q.Mine || q.Organizer == p.UserID)
	if own {
		f.Organizers = []int64{p.UserID}
	}
	var status models.EventStatus
	if q.Status != "" {
		status = models.EventStatus(q.Status)
		if !validStatus(status) {
			issues = append(issues, field("status", "unknown status"))
		}
	}
	if len(issues) > 0 {
		return nil, Invalid("invalid query", issues...)
	}
	switch {
	case own || p.IsAdmin():
		if status != "" {
			f.Statuses = []models.EventStatus{status}
		}
	default:
		f.Statuses = []models.EventStatus{models.StatusPublished}
	}

	if f.Search != "" {
		orgs, err := s.users.ListByRole(ctx, models.RoleOrganizer)
		if err != nil {
			return nil, Internal("browse events", err)
		}
		needle := strings.ToLower(f.Search)
		for _, o := range orgs {
			if o.Organizer != nil && strings.Contains(strings.ToLower(o.Organizer.Name), needle) {
				f.SearchOrganizers = append(f.SearchOrganizers, o.ID)
			}
		}
	}

	events, err := s.events.Find(ctx, f)
	if err != nil {
		return nil, Internal("browse events", err)
	}
	return events, nil
}

// TrendingEvents ranks published events by registrations over the last
// day, then backfills from all-time registration counts.
func (s *Service) TrendingEvents(ctx context.Context) ([]models.Event, error) {
	ids, err := s.regs.TrendingEventIDs(ctx, s.now().Add(-trendingWindow), trendingScan)
	if err != nil {
		return nil, Internal("trending", err)
	}
	found, err := s.events.FindByIDs(ctx, ids)
	if err != nil {
		return nil, Internal("trending", err)
	}
	byID := make(map[string]models.Event, len(found))
	for _, e := range found {
		byID[e.ID] = e
	}

	out := []models.Event{}
	taken := []string{}
	for _, id := range ids {
		e, ok := byID[id]
		if !ok || e.Status != models.StatusPublished {
			continue
		}
		out = append(out, e)
		taken = append(taken, id)
		if len(out) == trendingSize {
			return out, nil
		}
	}

	fill, err := s.events.TopByRegCount(ctx, trendingSize-len(out), taken)
	if err != nil {
		return nil, Internal("trending", err)
	}
	return append(out, fill...), nil
}

func (s *Service) GetForm(ctx context.Context, p Principal, id string) ([]models.FormField, error) {
	e, err := s.loadEvent(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if e.Kind != models.KindNormal || e.Normal == nil {
		return nil, Invalid("only normal events have a registration form")
	}
	if e.Normal.Form == nil {
		return []models.FormField{}, nil
	}
	return e.Normal.Form, nil
}

// UpdateForm replaces the custom form until the first registration exists.
func (s *Service) UpdateForm(ctx context.Context, p Principal, id string, fields []models.FormField) ([]models.FormField, error) {
	e, err := s.managedEvent(ctx, p, id)
	if err != nil {
		return nil, err
	}
	if e.Kind != models.KindNormal {
		return nil, Invalid("only normal events have a registration form")
	}
	if fields == nil {
		fields = []models.FormField{}
	}
	if issues := validateForm(fields); len(issues) > 0 {
		return nil, Invalid("invalid form", issues...)
	}
	n, err := s.regs.CountByEvent(ctx, id, models.ActiveStatuses)
	if err != nil {
		return nil, Internal("update form", err)
	}
	if n > 0 {
		return nil, Conflict("form is locked once registrations exist")
	}
	ok, err := s.events.SetForm(ctx, id, fields)
	if err != nil {
		return nil, Internal("update form", err)
	}
	if !ok {
		return nil, Conflict("form is locked once registrations exist")
	}
	s.purgeEvent(ctx, id)
	return fields, nil
}

// eventSummaries loads the events behind a set of registrations.
func (s *Service) eventSummaries(ctx context.Context, regs []models.Registration) (map[string]models.Event, error) {
	seen := map[string]bool{}
	var ids []string
	for _, r := range regs {
		if !seen[r.EventID] {
			seen[r.EventID] = true
			ids = append(ids, r.EventID)
		}
	}
	sort.Strings(ids)
	events, err := s.events.FindByIDs(ctx, ids)
	if err != nil {
		return nil, err
	}
	out := make(map[string]models.Event, len(events))
	for _, e := range events {
		out[e.ID] = e
	}
	return out, nil
}
