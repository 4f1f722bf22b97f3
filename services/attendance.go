package services

import (
	"bytes"
	"context"
	"strconv"
	"strings"
	"time"

	"felicity/models"
	"felicity/utils"
)

const (
	ActionScan           = "scan"
	ActionManualCheckin  = "manual-checkin"
	ActionManualOverride = "manual-override"
)

// admitted statuses may pass the door scanner.
var admitted = []models.RegStatus{models.RegRegistered, models.RegPurchased}

// manualAdmitted covers every status an organizer may override.
var manualAdmitted = []models.RegStatus{
	models.RegRegistered, models.RegPending, models.RegPurchased, models.RegRejected,
}

type CheckinResult struct {
	TicketID    string           `json:"ticketid"`
	Action      string           `json:"action"`
	CheckedInAt time.Time        `json:"checkinat"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Status      models.RegStatus `json:"status"`
}

// CheckinNotice is what live attendance subscribers receive.
type CheckinNotice struct {
	Type string `json:"type"`
	CheckinResult
	CheckedIn int `json:"checkedin"`
}

func isAdmitted(s models.RegStatus, list []models.RegStatus) bool {
	for _, a := range list {
		if a == s {
			return true
		}
	}
	return false
}

func (s *Service) eventTicket(ctx context.Context, eventID, ticketID string) (models.Registration, error) {
	ticketID = strings.TrimSpace(ticketID)
	if ticketID == "" {
		return models.Registration{}, Invalid("ticketid is required", field("ticketid", "is required"))
	}
	reg, err := s.ticket(ctx, ticketID)
	if err != nil {
		return models.Registration{}, err
	}
	if reg.EventID != eventID {
		return models.Registration{}, Invalid("ticket does not belong to this event")
	}
	return reg, nil
}

func (s *Service) checkinResult(ctx context.Context, reg models.Registration, action string, at time.Time) CheckinResult {
	res := CheckinResult{TicketID: reg.TicketID, Action: action, CheckedInAt: at, Status: reg.Status}
	if u, err := s.users.GetByID(ctx, reg.UserID); err == nil {
		res.Email = u.Email
		if u.Participant != nil {
			res.Name = strings.TrimSpace(u.Participant.FirstName + " " + u.Participant.LastName)
		}
	}
	return res
}

func (s *Service) announce(ctx context.Context, eventID string, res CheckinResult) {
	if s.live == nil {
		return
	}
	checked := 0
	if regs, err := s.regs.ListByEvent(ctx, eventID, models.ActiveStatuses); err == nil {
		for _, r := range regs {
			if r.CheckedIn {
				checked++
			}
		}
	}
	s.publish(eventID, CheckinNotice{Type: "checkin", CheckinResult: res, CheckedIn: checked})
}

// ScanTicket admits a ticket once.
func (s *Service) ScanTicket(ctx context.Context, p Principal, eventID, ticketID string) (CheckinResult, error) {
	if _, err := s.managedEvent(ctx, p, eventID); err != nil {
		return CheckinResult{}, err
	}
	reg, err := s.eventTicket(ctx, eventID, ticketID)
	if err != nil {
		return CheckinResult{}, err
	}
	if reg.CheckedIn {
		return CheckinResult{}, alreadyCheckedIn(reg)
	}
	if !isAdmitted(reg.Status, admitted) {
		return CheckinResult{}, Invalid("ticket is " + string(reg.Status) + " and cannot be admitted")
	}

	now := s.now()
	entry := models.CheckinEntry{Action: ActionScan, By: p.UserID, At: now}
	ok, err := s.regs.MarkCheckedIn(ctx, reg.TicketID, admitted, now, entry)
	if err != nil {
		return CheckinResult{}, Internal("scan ticket", err)
	}
	if !ok {
		latest, err := s.ticket(ctx, reg.TicketID)
		if err != nil {
			return CheckinResult{}, err
		}
		if latest.CheckedIn {
			return CheckinResult{}, alreadyCheckedIn(latest)
		}
		return CheckinResult{}, Conflict("ticket changed during scan, retry")
	}

	res := s.checkinResult(ctx, reg, ActionScan, now)
	s.announce(ctx, eventID, res)
	return res, nil
}

func alreadyCheckedIn(reg models.Registration) *Error {
	e := Conflict("already checked in")
	e.TicketID = reg.TicketID
	if reg.CheckedInAt != nil {
		e.CheckedInAt = reg.CheckedInAt.UTC().Format(time.RFC3339)
	}
	return e
}

type ManualCheckin struct {
	TicketID string `json:"ticketid"`
	Reason   string `json:"reason"`
}

// ManualCheckIn admits a ticket by hand. A ticket that is already in is
// recorded as an override and keeps its first check-in time.
func (s *Service) ManualCheckIn(ctx context.Context, p Principal, eventID string, in ManualCheckin) (CheckinResult, error) {
	if _, err := s.managedEvent(ctx, p, eventID); err != nil {
		return CheckinResult{}, err
	}
	reason := strings.TrimSpace(in.Reason)
	if reason == "" {
		return CheckinResult{}, Invalid("ticketid and reason required", field("reason", "is required"))
	}
	reg, err := s.eventTicket(ctx, eventID, in.TicketID)
	if err != nil {
		return CheckinResult{}, err
	}
	if !isAdmitted(reg.Status, manualAdmitted) {
		return CheckinResult{}, Invalid("cancelled tickets cannot be checked in")
	}

	now := s.now()
	if !reg.CheckedIn {
		entry := models.CheckinEntry{Action: ActionManualCheckin, Reason: reason, By: p.UserID, At: now}
		ok, err := s.regs.MarkCheckedIn(ctx, reg.TicketID, manualAdmitted, now, entry)
		if err != nil {
			return CheckinResult{}, Internal("manual checkin", err)
		}
		if ok {
			res := s.checkinResult(ctx, reg, ActionManualCheckin, now)
			s.announce(ctx, eventID, res)
			return res, nil
		}
		// lost a race with another check-in; fall through to an override
		if reg, err = s.ticket(ctx, reg.TicketID); err != nil {
			return CheckinResult{}, err
		}
		if !reg.CheckedIn {
			return CheckinResult{}, Conflict("ticket changed during check-in, retry")
		}
	}

	entry := models.CheckinEntry{Action: ActionManualOverride, Reason: reason, By: p.UserID, At: now}
	if err := s.regs.AppendCheckin(ctx, reg.TicketID, entry); err != nil {
		return CheckinResult{}, Internal("manual override", err)
	}
	at := now
	if reg.CheckedInAt != nil {
		at = *reg.CheckedInAt
	}
	res := s.checkinResult(ctx, reg, ActionManualOverride, at)
	s.announce(ctx, eventID, res)
	return res, nil
}

type AttendanceRow struct {
	TicketID    string           `json:"ticketid"`
	Name        string           `json:"name"`
	Email       string           `json:"email"`
	Status      models.RegStatus `json:"status"`
	CheckedIn   bool             `json:"checkin"`
	CheckedInAt *time.Time       `json:"checkinat,omitempty"`
}

type AttendanceStats struct {
	Total        int             `json:"total"`
	CheckedIn    int             `json:"checkedin"`
	Participants []AttendanceRow `json:"participants"`
}

func (s *Service) AttendanceStats(ctx context.Context, p Principal, eventID string) (AttendanceStats, error) {
	if _, err := s.managedEvent(ctx, p, eventID); err != nil {
		return AttendanceStats{}, err
	}
	rows, err := s.activeParticipants(ctx, eventID)
	if err != nil {
		return AttendanceStats{}, err
	}
	out := AttendanceStats{Total: len(rows), Participants: make([]AttendanceRow, 0, len(rows))}
	for _, r := range rows {
		if r.CheckedIn {
			out.CheckedIn++
		}
		out.Participants = append(out.Participants, AttendanceRow{
			TicketID:    r.TicketID,
			Name:        strings.TrimSpace(r.FirstName + " " + r.LastName),
			Email:       r.Email,
			Status:      r.Status,
			CheckedIn:   r.CheckedIn,
			CheckedInAt: r.CheckedInAt,
		})
	}
	return out, nil
}

var attendanceHeader = []string{
	"ticketid", "firstname", "lastname", "email", "status",
	"checkin", "checkinat", "registeredat",
}

func (s *Service) ExportAttendance(ctx context.Context, p Principal, eventID string) (Export, error) {
	e, err := s.managedEvent(ctx, p, eventID)
	if err != nil {
		return Export{}, err
	}
	rows, err := s.activeParticipants(ctx, eventID)
	if err != nil {
		return Export{}, err
	}
	records := make([][]string, 0, len(rows))
	for _, r := range rows {
		records = append(records, []string{
			r.TicketID, r.FirstName, r.LastName, r.Email, string(r.Status),
			strconv.FormatBool(r.CheckedIn), formatTime(r.CheckedInAt), formatTime(&r.RegisteredAt),
		})
	}
	var buf bytes.Buffer
	if err := utils.WriteCSV(&buf, attendanceHeader, records); err != nil {
		return Export{}, Internal("export attendance", err)
	}
	return Export{Filename: csvFilename(e.Name, "attendance"), Body: buf.Bytes()}, nil
}

// WatchAttendance authorizes a live attendance subscription.
func (s *Service) WatchAttendance(ctx context.Context, p Principal, eventID string) error {
	_, err := s.managedEvent(ctx, p, eventID)
	return err
}
