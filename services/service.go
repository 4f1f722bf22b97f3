// Package services holds Felicity's business rules. Handlers resolve the
// caller into a Principal and pass it explicitly to every operation.
package services

import (
	"context"
	"time"

	"felicity/models"
	"felicity/storage"
	"felicity/utils"
)

// Notifier receives check-in notices for live attendance feeds.
type Notifier interface {
	Publish(eventID string, v any)
}

type Deps struct {
	Events        models.EventRepository
	Registrations models.RegistrationRepository
	Users         models.UserRepository
	Resets        models.ResetRequestRepository
	Files         storage.Store
	Cache         *utils.CacheInvalidator
	Live          Notifier
	UploadPolicy  storage.Policy
	// PublicURL prefixes upload links; empty yields relative links.
	PublicURL string
	Now       func() time.Time
}

type Service struct {
	events    models.EventRepository
	regs      models.RegistrationRepository
	users     models.UserRepository
	resets    models.ResetRequestRepository
	files     storage.Store
	inv       *utils.CacheInvalidator
	live      Notifier
	policy    storage.Policy
	publicURL string
	now       func() time.Time
}

func New(d Deps) *Service {
	now := d.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	policy := d.UploadPolicy
	if len(policy.Allowed) == 0 {
		policy.Allowed = storage.DefaultProofPolicy.Allowed
	}
	if policy.MaxBytes == 0 {
		policy.MaxBytes = storage.DefaultProofPolicy.MaxBytes
	}
	return &Service{
		events:    d.Events,
		regs:      d.Registrations,
		users:     d.Users,
		resets:    d.Resets,
		files:     d.Files,
		inv:       d.Cache,
		live:      d.Live,
		policy:    policy,
		publicURL: d.PublicURL,
		now:       now,
	}
}

func (s *Service) publish(eventID string, v any) {
	if s.live != nil {
		s.live.Publish(eventID, v)
	}
}

// purgeEvent drops cached pages after a write. Cache loss is not an error.
func (s *Service) purgeEvent(ctx context.Context, id string) {
	s.inv.PurgeEvent(context.WithoutCancel(ctx), id)
}
