package services

import (
	"context"
	"errors"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"

	"felicity/logger"
	"felicity/models"
	"felicity/storage"
)

// ProofInput names a file previously stored through UploadFile.
type ProofInput struct {
	FileID string `json:"fileId"`
}

// SubmitProof attaches a payment proof to a merchandise order. It is
// accepted while the order is Registered or Rejected and always moves it
// to Pending, replacing any earlier proof.
func (s *Service) SubmitProof(ctx context.Context, p Principal, ticketID string, in ProofInput) (models.Registration, error) {
	reg, err := s.ticket(ctx, ticketID)
	if err != nil {
		return models.Registration{}, err
	}
	if reg.UserID != p.UserID {
		return models.Registration{}, Forbidden("not your ticket")
	}
	if reg.Kind != models.KindMerch {
		return models.Registration{}, Invalid("payment proof only applies to merchandise orders")
	}
	switch reg.Status {
	case models.RegRegistered, models.RegRejected:
	case models.RegPurchased:
		return models.Registration{}, Conflict("order already purchased")
	case models.RegPending:
		return models.Registration{}, Conflict("payment already under review")
	default:
		return models.Registration{}, Conflict("order is " + string(reg.Status))
	}

	fileID := strings.TrimSpace(in.FileID)
	if fileID == "" {
		return models.Registration{}, Invalid("proof file is required", field("fileId", "is required"))
	}
	info, err := s.files.Stat(ctx, fileID)
	if errors.Is(err, storage.ErrNotFound) {
		return models.Registration{}, Invalid("unknown proof file", field("fileId", "does not exist"))
	}
	if err != nil {
		return models.Registration{}, Internal("stat proof", err)
	}
	if info.Owner != p.UserID {
		return models.Registration{}, Forbidden("proof file belongs to another user")
	}

	pay := models.Payment{
		Proof:      s.fileURL(fileID),
		ProofID:    fileID,
		UploadedAt: s.now(),
	}
	ok, err := s.regs.AttachProof(ctx, ticketID, []models.RegStatus{models.RegRegistered, models.RegRejected}, pay)
	if err != nil {
		return models.Registration{}, Internal("attach proof", err)
	}
	if !ok {
		return models.Registration{}, Conflict("order changed while uploading, retry")
	}
	reg.Status = models.RegPending
	reg.Payment = &pay
	return reg, nil
}

// UploadProof stores the file and attaches it in one call.
func (s *Service) UploadProof(ctx context.Context, p Principal, ticketID, filename string, r io.Reader) (models.Registration, error) {
	reg, err := s.ticket(ctx, ticketID)
	if err != nil {
		return models.Registration{}, err
	}
	if reg.UserID != p.UserID {
		return models.Registration{}, Forbidden("not your ticket")
	}
	info, err := s.UploadFile(ctx, p, filename, r)
	if err != nil {
		return models.Registration{}, err
	}
	out, err := s.SubmitProof(ctx, p, ticketID, ProofInput{FileID: info.ID})
	if err != nil {
		if derr := s.files.Delete(context.WithoutCancel(ctx), info.ID); derr != nil {
			logger.Warn.Printf("[upload proof] drop orphan %s: %v", info.ID, derr)
		}
		return models.Registration{}, err
	}
	return out, nil
}

type PaymentDecision struct {
	Status models.RegStatus `json:"status"`
	Note   string           `json:"note"`
}

// reviewClaimTTL bounds how long an interrupted review blocks an order.
const reviewClaimTTL = time.Minute

// ResolvePayment approves or rejects a Pending order. The order is claimed
// first so only one reviewer touches stock for it; approval then takes one
// unit of the ordered variant with a conditional decrement.
func (s *Service) ResolvePayment(ctx context.Context, p Principal, ticketID string, in PaymentDecision) (models.Registration, error) {
	reg, err := s.ticket(ctx, ticketID)
	if err != nil {
		return models.Registration{}, err
	}
	e, err := s.managedEvent(ctx, p, reg.EventID)
	if err != nil {
		return models.Registration{}, err
	}
	if reg.Kind != models.KindMerch {
		return models.Registration{}, Invalid("payment review only applies to merchandise orders")
	}
	switch in.Status {
	case models.RegPurchased, models.RegRejected:
	default:
		return models.Registration{}, Invalid("invalid decision", field("status", "must be Purchased or Rejected"))
	}
	if reg.Status == models.RegPurchased {
		return models.Registration{}, Conflict("order already purchased")
	}
	if reg.Status != models.RegPending {
		return models.Registration{}, Conflict("payment is not pending review")
	}

	now := s.now()
	claim := uuid.NewString()
	ok, err := s.regs.ClaimPayment(ctx, ticketID, claim, now, now.Add(-reviewClaimTTL))
	if err != nil {
		return models.Registration{}, Internal("claim payment", err)
	}
	if !ok {
		return models.Registration{}, s.lostReview(ctx, ticketID)
	}

	if in.Status == models.RegRejected {
		ok, err := s.regs.ResolvePayment(ctx, ticketID, claim, models.RegRejected, p.UserID, in.Note, now)
		if err != nil {
			return models.Registration{}, Internal("reject payment", err)
		}
		if !ok {
			return models.Registration{}, s.lostReview(ctx, ticketID)
		}
		return s.ticket(ctx, ticketID)
	}

	ok, err = s.events.DecrementStock(ctx, e.ID, reg.Variant)
	if err != nil || !ok {
		if rerr := s.regs.ReleaseClaim(context.WithoutCancel(ctx), ticketID, claim); rerr != nil {
			logger.Error.Printf("[resolve payment] release %s: %v", ticketID, rerr)
		}
		if err != nil {
			return models.Registration{}, Internal("decrement stock", err)
		}
		return models.Registration{}, Conflict("variant " + reg.Variant + " is out of stock")
	}
	ok, err = s.regs.ResolvePayment(ctx, ticketID, claim, models.RegPurchased, p.UserID, in.Note, now)
	if err != nil || !ok {
		if rerr := s.events.RestoreStock(context.WithoutCancel(ctx), e.ID, reg.Variant); rerr != nil {
			logger.Error.Printf("[resolve payment] restore %s/%s: %v", e.ID, reg.Variant, rerr)
		}
		if err != nil {
			return models.Registration{}, Internal("approve payment", err)
		}
		return models.Registration{}, s.lostReview(ctx, ticketID)
	}
	s.purgeEvent(ctx, e.ID)
	return s.ticket(ctx, ticketID)
}

// lostReview explains why a claim or resolve on a ticket did not match.
func (s *Service) lostReview(ctx context.Context, ticketID string) error {
	reg, err := s.regs.GetByTicket(ctx, ticketID)
	switch {
	case err != nil:
		return Conflict("payment is not pending review")
	case reg.Status == models.RegPurchased:
		return Conflict("order already purchased")
	case reg.Status == models.RegPending:
		return Conflict("payment is being reviewed by someone else")
	default:
		return Conflict("payment is not pending review")
	}
}
