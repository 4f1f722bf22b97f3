package services

import (
	"context"
	"errors"
	"regexp"
	"strings"

	"github.com/google/uuid"

	"felicity/logger"
	"felicity/models"
	"felicity/utils"
)

const (
	minPassword  = 8
	tempPassword = 12
	iiitCollege  = "IIIT Hyderabad"
)

var iiitEmail = regexp.MustCompile(`^[a-zA-Z0-9._%+-]+@((research|students)\.)?iiit\.ac\.in$`)

type SignupInput struct {
	Email     string             `json:"email" binding:"required,email"`
	Password  string             `json:"password" binding:"required,min=8"`
	FirstName string             `json:"firstName" binding:"required"`
	LastName  string             `json:"lastName" binding:"required"`
	Contact   string             `json:"contact"`
	College   string             `json:"college"`
	Type      models.Affiliation `json:"type" binding:"required,oneof=IIIT External"`
	Interests []string           `json:"interests"`
}

type Session struct {
	Token string      `json:"token"`
	User  models.User `json:"user"`
}

func (s *Service) session(u models.User) (Session, error) {
	token, err := utils.GenerateToken(u.ID, string(u.Role))
	if err != nil {
		return Session{}, Internal("sign token", err)
	}
	return Session{Token: token, User: u}, nil
}

// Signup creates a participant account. IIIT participants must use an
// institute address and are pinned to the institute as their college.
func (s *Service) Signup(ctx context.Context, in SignupInput) (Session, error) {
	email := strings.ToLower(strings.TrimSpace(in.Email))
	var issues []Issue
	if len(in.Password) < minPassword {
		issues = append(issues, field("password", "must be at least 8 characters"))
	}
	college := strings.TrimSpace(in.College)
	switch in.Type {
	case models.AffiliationIIIT:
		if !iiitEmail.MatchString(email) {
			issues = append(issues, field("email", "IIIT participants must use an iiit.ac.in address"))
		}
		college = iiitCollege
	case models.AffiliationExternal:
		if college == "" {
			issues = append(issues, field("college", "is required for external participants"))
		}
	default:
		issues = append(issues, field("type", "must be IIIT or External"))
	}
	if strings.TrimSpace(in.FirstName) == "" {
		issues = append(issues, field("firstName", "is required"))
	}
	if len(issues) > 0 {
		return Session{}, Invalid("invalid signup", issues...)
	}

	u := models.User{
		Email:    email,
		Password: in.Password,
		Role:     models.RoleParticipant,
		Participant: &models.ParticipantProfile{
			FirstName:   strings.TrimSpace(in.FirstName),
			LastName:    strings.TrimSpace(in.LastName),
			Contact:     strings.TrimSpace(in.Contact),
			College:     college,
			Affiliation: in.Type,
			Interests:   cleanTags(in.Interests),
			Following:   []int64{},
		},
	}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return Session{}, Conflict("email already registered")
		}
		return Session{}, Internal("signup", err)
	}
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.users.ValidateCredentials(ctx, email, password)
	if errors.Is(err, models.ErrInvalidLogin) {
		return Session{}, Unauthenticated("invalid credentials")
	}
	if err != nil {
		return Session{}, Internal("login", err)
	}
	if u.Organizer != nil && u.Organizer.Disabled {
		return Session{}, Forbidden("account disabled")
	}
	return s.session(u)
}

// CheckActive rejects tokens of deleted or disabled accounts.
func (s *Service) CheckActive(ctx context.Context, userID int64) (models.Role, error) {
	u, err := s.users.GetByID(ctx, userID)
	if errors.Is(err, models.ErrNotFound) {
		return "", Unauthenticated("account no longer exists")
	}
	if err != nil {
		return "", Internal("check account", err)
	}
	if u.Organizer != nil && u.Organizer.Disabled {
		return "", Forbidden("account disabled")
	}
	return u.Role, nil
}

func (s *Service) Me(ctx context.Context, p Principal) (models.User, error) {
	u, err := s.users.GetByID(ctx, p.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return models.User{}, NotFound("user not found")
	}
	if err != nil {
		return models.User{}, Internal("me", err)
	}
	return u, nil
}

type ParticipantPatch struct {
	FirstName *string             `json:"firstName"`
	LastName  *string             `json:"lastName"`
	Contact   *string             `json:"contact"`
	College   *string             `json:"college"`
	Type      *models.Affiliation `json:"type"`
	Interests *[]string           `json:"interests"`
}

func (s *Service) UpdateParticipant(ctx context.Context, p Principal, patch ParticipantPatch) (models.User, error) {
	if !p.IsParticipant() {
		return models.User{}, Forbidden("only participants have this profile")
	}
	u, err := s.Me(ctx, p)
	if err != nil {
		return models.User{}, err
	}
	prof := *u.Participant
	if patch.Type != nil && *patch.Type != prof.Affiliation {
		return models.User{}, Invalid("participant type cannot be changed", field("type", "is fixed at signup"))
	}
	if patch.College != nil {
		c := strings.TrimSpace(*patch.College)
		if prof.Affiliation == models.AffiliationIIIT && c != prof.College {
			return models.User{}, Invalid("IIIT participants cannot change college", field("college", "is fixed"))
		}
		if c == "" {
			return models.User{}, Invalid("college is required", field("college", "is required"))
		}
		prof.College = c
	}
	if patch.FirstName != nil {
		if strings.TrimSpace(*patch.FirstName) == "" {
			return models.User{}, Invalid("first name is required", field("firstName", "is required"))
		}
		prof.FirstName = strings.TrimSpace(*patch.FirstName)
	}
	if patch.LastName != nil {
		prof.LastName = strings.TrimSpace(*patch.LastName)
	}
	if patch.Contact != nil {
		prof.Contact = strings.TrimSpace(*patch.Contact)
	}
	if patch.Interests != nil {
		prof.Interests = cleanTags(*patch.Interests)
	}
	if err := s.users.UpdateParticipant(ctx, p.UserID, prof); err != nil {
		return models.User{}, Internal("update profile", err)
	}
	u.Participant = &prof
	return u, nil
}

type PasswordChange struct {
	Current string `json:"current" binding:"required"`
	NewPass string `json:"newpass" binding:"required"`
}

func (s *Service) ChangePassword(ctx context.Context, p Principal, in PasswordChange) error {
	if len(in.NewPass) < minPassword {
		return Invalid("password too short", field("newpass", "must be at least 8 characters"))
	}
	u, err := s.Me(ctx, p)
	if err != nil {
		return err
	}
	if !utils.CheckPasswordHash(in.Current, u.Password) {
		return Invalid("current password is incorrect", field("current", "does not match"))
	}
	if err := s.users.SetPassword(ctx, p.UserID, in.NewPass); err != nil {
		return Internal("change password", err)
	}
	return nil
}

// ===== organizers =====

type OrganizerView struct {
	ID           int64  `json:"id"`
	Name         string `json:"name"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	ContactEmail string `json:"contactEmail"`
}

func publicOrganizer(u models.User) OrganizerView {
	v := OrganizerView{ID: u.ID}
	if o := u.Organizer; o != nil {
		v.Name, v.Category, v.Description, v.ContactEmail = o.Name, o.Category, o.Description, o.ContactEmail
	}
	return v
}

func (s *Service) ListOrganizers(ctx context.Context) ([]OrganizerView, error) {
	users, err := s.users.ListByRole(ctx, models.RoleOrganizer)
	if err != nil {
		return nil, Internal("list organizers", err)
	}
	out := []OrganizerView{}
	for _, u := range users {
		if u.Organizer != nil && u.Organizer.Disabled {
			continue
		}
		out = append(out, publicOrganizer(u))
	}
	return out, nil
}

type OrganizerDetail struct {
	OrganizerView
	Events []models.Event `json:"events"`
}

func (s *Service) organizer(ctx context.Context, id int64) (models.User, error) {
	u, err := s.users.GetByID(ctx, id)
	if errors.Is(err, models.ErrNotFound) || (err == nil && u.Role != models.RoleOrganizer) {
		return models.User{}, NotFound("organizer not found")
	}
	if err != nil {
		return models.User{}, Internal("get organizer", err)
	}
	return u, nil
}

func (s *Service) GetOrganizer(ctx context.Context, id int64) (OrganizerDetail, error) {
	u, err := s.organizer(ctx, id)
	if err != nil {
		return OrganizerDetail{}, err
	}
	if u.Organizer.Disabled {
		return OrganizerDetail{}, NotFound("organizer not found")
	}
	events, err := s.events.Find(ctx, models.EventFilter{
		Organizers: []int64{id},
		Statuses:   []models.EventStatus{models.StatusPublished, models.StatusOngoing, models.StatusCompleted},
		Limit:      maxPage,
	})
	if err != nil {
		return OrganizerDetail{}, Internal("organizer events", err)
	}
	return OrganizerDetail{OrganizerView: publicOrganizer(u), Events: events}, nil
}

func (s *Service) ToggleFollow(ctx context.Context, p Principal, organizerID int64) (bool, error) {
	if !p.IsParticipant() {
		return false, Forbidden("only participants can follow organizers")
	}
	if _, err := s.organizer(ctx, organizerID); err != nil {
		return false, err
	}
	following, err := s.users.ToggleFollow(ctx, p.UserID, organizerID)
	if err != nil {
		return false, Internal("toggle follow", err)
	}
	return following, nil
}

type OrganizerPatch struct {
	Name         *string `json:"name"`
	Category     *string `json:"category"`
	Description  *string `json:"description"`
	ContactEmail *string `json:"contactEmail"`
	Contact      *string `json:"contact"`
}

func (s *Service) UpdateOrganizerProfile(ctx context.Context, p Principal, patch OrganizerPatch) (models.User, error) {
	if !p.IsOrganizer() {
		return models.User{}, Forbidden("only organizers have this profile")
	}
	u, err := s.Me(ctx, p)
	if err != nil {
		return models.User{}, err
	}
	prof := *u.Organizer
	if patch.Name != nil {
		if strings.TrimSpace(*patch.Name) == "" {
			return models.User{}, Invalid("name is required", field("name", "is required"))
		}
		prof.Name = strings.TrimSpace(*patch.Name)
	}
	if patch.Category != nil {
		prof.Category = strings.TrimSpace(*patch.Category)
	}
	if patch.Description != nil {
		prof.Description = *patch.Description
	}
	if patch.ContactEmail != nil {
		prof.ContactEmail = strings.TrimSpace(*patch.ContactEmail)
	}
	if patch.Contact != nil {
		prof.Contact = strings.TrimSpace(*patch.Contact)
	}
	if err := s.users.UpdateOrganizer(ctx, p.UserID, prof); err != nil {
		return models.User{}, Internal("update organizer", err)
	}
	u.Organizer = &prof
	s.inv.PurgeOrganizers(context.WithoutCancel(ctx))
	return u, nil
}

// ===== admin =====

type OrganizerInput struct {
	Email        string `json:"email" binding:"required,email"`
	Password     string `json:"password"`
	Name         string `json:"name" binding:"required"`
	Category     string `json:"category" binding:"required"`
	Description  string `json:"description"`
	ContactEmail string `json:"contactEmail"`
	Contact      string `json:"contact"`
}

type CreatedOrganizer struct {
	User         models.User `json:"organizer"`
	TempPassword string      `json:"tempPassword"`
}

// CreateOrganizer returns the initial password once; a random one is
// generated when the admin supplies none.
func (s *Service) CreateOrganizer(ctx context.Context, p Principal, in OrganizerInput) (CreatedOrganizer, error) {
	if !p.IsAdmin() {
		return CreatedOrganizer{}, Forbidden("admin only")
	}
	pass := in.Password
	if pass == "" {
		var err error
		if pass, err = utils.GeneratePassword(tempPassword); err != nil {
			return CreatedOrganizer{}, Internal("generate password", err)
		}
	}
	if len(pass) < minPassword {
		return CreatedOrganizer{}, Invalid("password too short", field("password", "must be at least 8 characters"))
	}
	contactEmail := strings.TrimSpace(in.ContactEmail)
	if contactEmail == "" {
		contactEmail = strings.ToLower(strings.TrimSpace(in.Email))
	}
	u := models.User{
		Email:    in.Email,
		Password: pass,
		Role:     models.RoleOrganizer,
		Organizer: &models.OrganizerProfile{
			Name:         strings.TrimSpace(in.Name),
			Category:     strings.TrimSpace(in.Category),
			Description:  in.Description,
			ContactEmail: contactEmail,
			Contact:      strings.TrimSpace(in.Contact),
		},
	}
	if err := s.users.Create(ctx, &u); err != nil {
		if errors.Is(err, models.ErrEmailTaken) {
			return CreatedOrganizer{}, Conflict("organizer already exists")
		}
		return CreatedOrganizer{}, Internal("create organizer", err)
	}
	s.inv.PurgeOrganizers(context.WithoutCancel(ctx))
	return CreatedOrganizer{User: u, TempPassword: pass}, nil
}

func (s *Service) AdminListOrganizers(ctx context.Context, p Principal) ([]models.User, error) {
	if !p.IsAdmin() {
		return nil, Forbidden("admin only")
	}
	users, err := s.users.ListByRole(ctx, models.RoleOrganizer)
	if err != nil {
		return nil, Internal("list organizers", err)
	}
	return users, nil
}

// ToggleOrganizer flips the disabled flag and reports the new value.
func (s *Service) ToggleOrganizer(ctx context.Context, p Principal, id int64) (bool, error) {
	if !p.IsAdmin() {
		return false, Forbidden("admin only")
	}
	u, err := s.organizer(ctx, id)
	if err != nil {
		return false, err
	}
	disabled := !u.Organizer.Disabled
	if err := s.users.SetDisabled(ctx, id, disabled); err != nil {
		return false, Internal("toggle organizer", err)
	}
	s.inv.PurgeOrganizers(context.WithoutCancel(ctx))
	return disabled, nil
}

// DeleteOrganizer removes the account together with its events, their
// registrations and its reset requests.
func (s *Service) DeleteOrganizer(ctx context.Context, p Principal, id int64) error {
	if !p.IsAdmin() {
		return Forbidden("admin only")
	}
	if _, err := s.organizer(ctx, id); err != nil {
		return err
	}
	events, err := s.events.ListByOrganizer(ctx, id)
	if err != nil {
		return Internal("delete organizer", err)
	}
	for _, e := range events {
		if err := s.deleteEventCascade(ctx, e.ID); err != nil {
			return err
		}
	}
	if err := s.resets.DeleteByOrganizer(ctx, id); err != nil {
		return Internal("delete organizer", err)
	}
	if err := s.users.Delete(ctx, id); err != nil && !errors.Is(err, models.ErrNotFound) {
		return Internal("delete organizer", err)
	}
	s.inv.PurgeOrganizers(context.WithoutCancel(ctx))
	return nil
}

// SeedAdmin creates the admin account on first start.
func (s *Service) SeedAdmin(ctx context.Context, email, password string) error {
	if email == "" || password == "" {
		return nil
	}
	_, err := s.users.GetByEmail(ctx, email)
	if err == nil {
		return nil
	}
	if !errors.Is(err, models.ErrNotFound) {
		return err
	}
	u := models.User{Email: email, Password: password, Role: models.RoleAdmin}
	if err := s.users.Create(ctx, &u); err != nil && !errors.Is(err, models.ErrEmailTaken) {
		return err
	}
	logger.Info.Printf("[seed] admin account %s created", u.Email)
	return nil
}

// ===== password reset requests =====

type ResetInput struct {
	Reason string `json:"reason" binding:"required"`
}

func (s *Service) RequestReset(ctx context.Context, p Principal, in ResetInput) (models.ResetRequest, error) {
	if !p.IsOrganizer() {
		return models.ResetRequest{}, Forbidden("only organizers can request a reset")
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return models.ResetRequest{}, Invalid("reason is required", field("reason", "is required"))
	}
	req := models.ResetRequest{OrganizerID: p.UserID, Reason: reason, CreatedAt: s.now()}
	if err := s.resets.Create(ctx, &req); err != nil {
		if errors.Is(err, models.ErrPendingExists) {
			return models.ResetRequest{}, Conflict("a reset request is already pending")
		}
		return models.ResetRequest{}, Internal("request reset", err)
	}
	return req, nil
}

func (s *Service) MyResetRequest(ctx context.Context, p Principal) (models.ResetRequest, error) {
	if !p.IsOrganizer() {
		return models.ResetRequest{}, Forbidden("only organizers have reset requests")
	}
	req, err := s.resets.Latest(ctx, p.UserID)
	if errors.Is(err, models.ErrNotFound) {
		return models.ResetRequest{}, NotFound("no reset request")
	}
	if err != nil {
		return models.ResetRequest{}, Internal("my reset request", err)
	}
	return req, nil
}

func (s *Service) ListResetRequests(ctx context.Context, p Principal, status string) ([]models.ResetRequest, error) {
	if !p.IsAdmin() {
		return nil, Forbidden("admin only")
	}
	st := models.ResetStatus(status)
	switch st {
	case "", models.ResetPending, models.ResetApproved, models.ResetRejected:
	default:
		return nil, Invalid("invalid status", field("status", "must be pending, approved or rejected"))
	}
	out, err := s.resets.List(ctx, st)
	if err != nil {
		return nil, Internal("list reset requests", err)
	}
	return out, nil
}

type ResetDecision struct {
	Action string `json:"action" binding:"required,oneof=approve reject"`
	Note   string `json:"note"`
}

// ResolvedReset carries the generated password of an approved request.
// It is returned from this call only and never stored in clear.
type ResolvedReset struct {
	Request     models.ResetRequest `json:"request"`
	NewPassword string              `json:"newPassword,omitempty"`
}

func (s *Service) ResolveReset(ctx context.Context, p Principal, id string, in ResetDecision) (ResolvedReset, error) {
	if !p.IsAdmin() {
		return ResolvedReset{}, Forbidden("admin only")
	}
	rid, err := uuid.Parse(id)
	if err != nil {
		return ResolvedReset{}, NotFound("reset request not found")
	}
	var status models.ResetStatus
	switch in.Action {
	case "approve":
		status = models.ResetApproved
	case "reject":
		status = models.ResetRejected
	default:
		return ResolvedReset{}, Invalid("invalid action", field("action", "must be approve or reject"))
	}

	var plain, hash string
	if status == models.ResetApproved {
		if plain, err = utils.GeneratePassword(tempPassword); err != nil {
			return ResolvedReset{}, Internal("generate password", err)
		}
		if hash, err = utils.HashPassword(plain); err != nil {
			return ResolvedReset{}, Internal("hash password", err)
		}
	}
	req, err := s.resets.Resolve(ctx, rid, status, strings.TrimSpace(in.Note), p.UserID, s.now(), hash)
	switch {
	case errors.Is(err, models.ErrNotFound):
		return ResolvedReset{}, NotFound("reset request not found")
	case errors.Is(err, models.ErrNotPending):
		return ResolvedReset{}, Conflict("request already resolved")
	case err != nil:
		return ResolvedReset{}, Internal("resolve reset", err)
	}
	return ResolvedReset{Request: req, NewPassword: plain}, nil
}

type NoteInput struct {
	Note string `json:"note"`
}

// UpdateResetNote is the one edit allowed after resolution.
func (s *Service) UpdateResetNote(ctx context.Context, p Principal, id string, in NoteInput) (models.ResetRequest, error) {
	if !p.IsAdmin() {
		return models.ResetRequest{}, Forbidden("admin only")
	}
	rid, err := uuid.Parse(id)
	if err != nil {
		return models.ResetRequest{}, NotFound("reset request not found")
	}
	if err := s.resets.UpdateNote(ctx, rid, strings.TrimSpace(in.Note)); err != nil {
		if errors.Is(err, models.ErrNotFound) {
			return models.ResetRequest{}, NotFound("reset request not found")
		}
		return models.ResetRequest{}, Internal("update note", err)
	}
	req, err := s.resets.GetByID(ctx, rid)
	if err != nil {
		return models.ResetRequest{}, Internal("update note", err)
	}
	return req, nil
}
