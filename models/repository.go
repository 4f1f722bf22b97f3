package models

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
)

var (
	ErrNotFound        = errors.New("not found")
	ErrDuplicate       = errors.New("duplicate registration")
	ErrTicketCollision = errors.New("ticket id collision")
	ErrEmailTaken      = errors.New("email already in use")
	ErrPendingExists   = errors.New("a pending request already exists")
	ErrNotPending      = errors.New("request already resolved")
	ErrInvalidLogin    = errors.New("invalid credentials")
)

// ===== Events =====

type EventKind string

const (
	KindNormal EventKind = "Normal"
	KindMerch  EventKind = "Merchandise"
)

type EventStatus string

const (
	StatusDraft     EventStatus = "draft"
	StatusPublished EventStatus = "published"
	StatusOngoing   EventStatus = "ongoing"
	StatusCompleted EventStatus = "completed"
	StatusCancelled EventStatus = "cancelled"
)

type Eligibility string

const (
	EligibleAll      Eligibility = "all"
	EligibleIIIT     Eligibility = "iiit"
	EligibleExternal Eligibility = "external"
)

type EventDates struct {
	Start    time.Time `json:"start" bson:"start"`
	End      time.Time `json:"end" bson:"end"`
	Deadline time.Time `json:"deadline" bson:"deadline"`
}

type FormField struct {
	Label    string   `json:"label" bson:"label"`
	Type     string   `json:"type" bson:"type"`
	Required bool     `json:"required" bson:"required"`
	Options  []string `json:"options,omitempty" bson:"options,omitempty"`
}

type NormalDetails struct {
	Fee  float64     `json:"fee" bson:"fee"`
	Form []FormField `json:"formschema" bson:"formschema"`
}

type Variant struct {
	Name  string  `json:"name" bson:"name"`
	Price float64 `json:"price" bson:"price"`
	Stock int     `json:"stock" bson:"stock"`
}

type MerchDetails struct {
	Variants      []Variant `json:"variants" bson:"variants"`
	PurchaseLimit int       `json:"purchaseLimit" bson:"purchaselimit"`
}

// Event is either Normal or Merchandise; exactly one of Normal/Merch is set.
type Event struct {
	ID          string         `json:"id" bson:"id"`
	Name        string         `json:"name" bson:"name"`
	Description string         `json:"description" bson:"description"`
	Kind        EventKind      `json:"type" bson:"type"`
	Eligibility Eligibility    `json:"eligibility" bson:"eligibility"`
	Dates       EventDates     `json:"dates" bson:"dates"`
	Limit       int            `json:"limit" bson:"limit"`
	RegCount    int            `json:"regcount" bson:"regcount"`
	Tags        []string       `json:"tags" bson:"tags"`
	Status      EventStatus    `json:"status" bson:"status"`
	OrganizerID int64          `json:"organizer" bson:"organizer"`
	Normal      *NormalDetails `json:"normal,omitempty" bson:"normal,omitempty"`
	Merch       *MerchDetails  `json:"merch,omitempty" bson:"merch,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdat"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updatedat"`
}

func (e Event) Variant(name string) (Variant, bool) {
	if e.Merch == nil {
		return Variant{}, false
	}
	for _, v := range e.Merch.Variants {
		if v.Name == name {
			return v, true
		}
	}
	return Variant{}, false
}

// EventFilter drives browse queries. Empty fields do not filter.
type EventFilter struct {
	Kind        EventKind
	Statuses    []EventStatus
	Tags        []string
	Organizers  []int64
	Eligibility Eligibility
	Search      string
	// organizers whose display name matched Search
	SearchOrganizers []int64
	From, To         *time.Time
	Limit, Skip      int
}

type EventRepository interface {
	Create(ctx context.Context, e *Event) error
	GetByID(ctx context.Context, id string) (Event, error)
	Find(ctx context.Context, f EventFilter) ([]Event, error)
	FindByIDs(ctx context.Context, ids []string) ([]Event, error)
	TopByRegCount(ctx context.Context, limit int, exclude []string) ([]Event, error)
	ListByOrganizer(ctx context.Context, organizerID int64) ([]Event, error)
	// Replace writes every mutable field of e, but only while the stored
	// status still equals expect and the stored regcount fits e.Limit.
	// Variant stock is left alone unless withVariants is set, since
	// approvals decrement it concurrently.
	Replace(ctx context.Context, e *Event, expect EventStatus, withVariants bool) (bool, error)
	// SetForm only matches a Normal event with no registrations.
	SetForm(ctx context.Context, id string, form []FormField) (bool, error)
	// ReserveSeat increments regcount while published, before the
	// deadline and below the limit.
	ReserveSeat(ctx context.Context, id string, now time.Time) (bool, error)
	ReleaseSeat(ctx context.Context, id string) error
	// DecrementStock takes one unit of a variant only while stock > 0.
	DecrementStock(ctx context.Context, id, variant string) (bool, error)
	RestoreStock(ctx context.Context, id, variant string) error
	Delete(ctx context.Context, id string) error
}

// ===== Registrations =====

type RegStatus string

const (
	RegRegistered RegStatus = "Registered"
	RegPending    RegStatus = "Pending"
	RegPurchased  RegStatus = "Purchased"
	RegRejected   RegStatus = "Rejected"
	RegCancelled  RegStatus = "Cancelled"
)

// ActiveStatuses hold a seat.
var ActiveStatuses = []RegStatus{RegRegistered, RegPending, RegPurchased}

type FormAnswer struct {
	Label string `json:"label" bson:"label"`
	Value string `json:"value" bson:"value"`
}

type CheckinEntry struct {
	Action string    `json:"action" bson:"action"`
	Reason string    `json:"reason,omitempty" bson:"reason,omitempty"`
	By     int64     `json:"by" bson:"by"`
	At     time.Time `json:"at" bson:"at"`
}

type Payment struct {
	Proof      string     `json:"proof" bson:"proof"`
	ProofID    string     `json:"proofId" bson:"proofid"`
	UploadedAt time.Time  `json:"uploadedAt" bson:"uploadedat"`
	ResolvedAt *time.Time `json:"resolvedAt,omitempty" bson:"resolvedat,omitempty"`
	ResolvedBy int64      `json:"resolvedBy,omitempty" bson:"resolvedby,omitempty"`
	Note       string     `json:"note,omitempty" bson:"note,omitempty"`
	// Claim marks a review in progress; see RegistrationRepository.ClaimPayment.
	Claim      string     `json:"-" bson:"claim,omitempty"`
	ClaimedAt  *time.Time `json:"-" bson:"claimedat,omitempty"`
}

type Registration struct {
	ID          string         `json:"id" bson:"id"`
	TicketID    string         `json:"ticketid" bson:"ticketid"`
	UserID      int64          `json:"user" bson:"user"`
	EventID     string         `json:"event" bson:"event"`
	Kind        EventKind      `json:"type" bson:"type"`
	Status      RegStatus      `json:"status" bson:"status"`
	FormData    []FormAnswer   `json:"formdata" bson:"formdata"`
	Variant     string         `json:"variant,omitempty" bson:"variant,omitempty"`
	CheckedIn   bool           `json:"checkin" bson:"checkin"`
	CheckedInAt *time.Time     `json:"checkinat,omitempty" bson:"checkinat,omitempty"`
	CheckinLog  []CheckinEntry `json:"checkinlog" bson:"checkinlog"`
	Payment     *Payment       `json:"payment,omitempty" bson:"payment,omitempty"`
	CreatedAt   time.Time      `json:"createdAt" bson:"createdat"`
	UpdatedAt   time.Time      `json:"updatedAt" bson:"updatedat"`
}

func (r Registration) Active() bool {
	for _, s := range ActiveStatuses {
		if r.Status == s {
			return true
		}
	}
	return false
}

type RegistrationRepository interface {
	// Insert returns ErrDuplicate when the user already holds an active
	// Normal registration and ErrTicketCollision on a ticket id clash.
	Insert(ctx context.Context, r *Registration) error
	GetByTicket(ctx context.Context, ticketID string) (Registration, error)
	FindByProof(ctx context.Context, fileID string) (Registration, error)
	ListByUser(ctx context.Context, userID int64) ([]Registration, error)
	ListByEvent(ctx context.Context, eventID string, statuses []RegStatus) ([]Registration, error)
	// ListActive returns the user's active registrations for an event.
	ListActive(ctx context.Context, eventID string, userID int64) ([]Registration, error)
	CountByEvent(ctx context.Context, eventID string, statuses []RegStatus) (int, error)
	// Transition moves a ticket to `to` only if its status is one of from.
	Transition(ctx context.Context, ticketID string, from []RegStatus, to RegStatus) (bool, error)
	// AttachProof stores p and moves the ticket to Pending.
	AttachProof(ctx context.Context, ticketID string, from []RegStatus, p Payment) (bool, error)
	// ClaimPayment reserves a Pending ticket for one reviewer. An existing
	// claim older than staleBefore can be taken over.
	ClaimPayment(ctx context.Context, ticketID, claim string, at, staleBefore time.Time) (bool, error)
	ReleaseClaim(ctx context.Context, ticketID, claim string) error
	// ResolvePayment moves a Pending ticket held by claim to `to`, records
	// the resolver and clears the claim.
	ResolvePayment(ctx context.Context, ticketID, claim string, to RegStatus, by int64, note string, at time.Time) (bool, error)
	// MarkCheckedIn only matches a ticket that is not yet checked in and
	// whose status is in admitted.
	MarkCheckedIn(ctx context.Context, ticketID string, admitted []RegStatus, at time.Time, entry CheckinEntry) (bool, error)
	AppendCheckin(ctx context.Context, ticketID string, entry CheckinEntry) error
	DeleteByEvent(ctx context.Context, eventID string) (int64, error)
	// TrendingEventIDs ranks events by uncancelled registrations created
	// since `since`.
	TrendingEventIDs(ctx context.Context, since time.Time, limit int) ([]string, error)
}

// ===== Users =====

type Role string

const (
	RoleParticipant Role = "participant"
	RoleOrganizer   Role = "organizer"
	RoleAdmin       Role = "admin"
)

type Affiliation string

const (
	AffiliationIIIT     Affiliation = "IIIT"
	AffiliationExternal Affiliation = "External"
)

type ParticipantProfile struct {
	FirstName   string      `json:"firstName"`
	LastName    string      `json:"lastName"`
	Contact     string      `json:"contact"`
	College     string      `json:"college"`
	Affiliation Affiliation `json:"type"`
	Interests   []string    `json:"interests"`
	Following   []int64     `json:"following"`
}

type OrganizerProfile struct {
	Name         string `json:"name"`
	Category     string `json:"category"`
	Description  string `json:"description"`
	ContactEmail string `json:"contactEmail"`
	Contact      string `json:"contact"`
	Disabled     bool   `json:"disabled"`
}

// User carries the profile matching its Role; admins carry none.
type User struct {
	ID          int64               `json:"id"`
	Email       string              `json:"email"`
	Password    string              `json:"-"`
	Role        Role                `json:"role"`
	Participant *ParticipantProfile `json:"participant,omitempty"`
	Organizer   *OrganizerProfile   `json:"organizer,omitempty"`
	CreatedAt   time.Time           `json:"createdAt"`
}

type UserRepository interface {
	// Create hashes u.Password before storing it.
	Create(ctx context.Context, u *User) error
	ValidateCredentials(ctx context.Context, email, plain string) (User, error)
	GetByID(ctx context.Context, id int64) (User, error)
	GetByEmail(ctx context.Context, email string) (User, error)
	ListByRole(ctx context.Context, role Role) ([]User, error)
	UpdateParticipant(ctx context.Context, id int64, p ParticipantProfile) error
	UpdateOrganizer(ctx context.Context, id int64, o OrganizerProfile) error
	SetPassword(ctx context.Context, id int64, plain string) error
	SetDisabled(ctx context.Context, id int64, disabled bool) error
	Delete(ctx context.Context, id int64) error
	// ToggleFollow reports whether the user follows the organizer afterwards.
	ToggleFollow(ctx context.Context, userID, organizerID int64) (bool, error)
}

// ===== Password-reset requests =====

type ResetStatus string

const (
	ResetPending  ResetStatus = "pending"
	ResetApproved ResetStatus = "approved"
	ResetRejected ResetStatus = "rejected"
)

type ResetRequest struct {
	ID          uuid.UUID   `gorm:"type:uuid;primaryKey" json:"id"`
	OrganizerID int64       `gorm:"not null;index" json:"organizer"`
	Status      ResetStatus `gorm:"type:text;not null;default:pending" json:"status"`
	Reason      string      `gorm:"type:text;not null" json:"reason"`
	Note        string      `gorm:"type:text" json:"note,omitempty"`
	CreatedAt   time.Time   `json:"createdAt"`
	ResolvedAt  *time.Time  `json:"resolvedAt,omitempty"`
	ResolvedBy  *int64      `json:"resolvedBy,omitempty"`
}

func (r *ResetRequest) BeforeCreate(tx *gorm.DB) error {
	if r.ID == uuid.Nil {
		r.ID = uuid.New()
	}
	return nil
}

type ResetRequestRepository interface {
	// Create returns ErrPendingExists if the organizer has a pending request.
	Create(ctx context.Context, r *ResetRequest) error
	GetByID(ctx context.Context, id uuid.UUID) (ResetRequest, error)
	Latest(ctx context.Context, organizerID int64) (ResetRequest, error)
	List(ctx context.Context, status ResetStatus) ([]ResetRequest, error)
	// Resolve settles a pending request exactly once. When passwordHash is
	// non-empty the organizer's password is replaced in the same transaction.
	Resolve(ctx context.Context, id uuid.UUID, status ResetStatus, note string, by int64, at time.Time, passwordHash string) (ResetRequest, error)
	UpdateNote(ctx context.Context, id uuid.UUID, note string) error
	DeleteByOrganizer(ctx context.Context, organizerID int64) error
}
