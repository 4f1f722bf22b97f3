package services

import "felicity/models"

// Principal is the authenticated caller. The zero value is anonymous.
type Principal struct {
	UserID int64
	Role   models.Role
}

func (p Principal) Anonymous() bool { return p.UserID == 0 }
func (p Principal) IsAdmin() bool   { return p.Role == models.RoleAdmin }

func (p Principal) IsOrganizer() bool { return p.Role == models.RoleOrganizer }

func (p Principal) IsParticipant() bool { return p.Role == models.RoleParticipant }

// owns reports whether p may manage an event as its organizer.
func (p Principal) owns(e models.Event) bool {
	return p.IsOrganizer() && e.OrganizerID == p.UserID
}

// manages is owns, widened to admins.
func (p Principal) manages(e models.Event) bool {
	return p.owns(e) || p.IsAdmin()
}
