package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"felicity/services"
)

func idParam(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		respondError(c, services.NotFound("organizer not found"))
		return 0, false
	}
	return id, true
}

// GET /organizers
func (d *deps) getOrganizers(c *gin.Context) {
	list, err := d.svc.ListOrganizers(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizers": list})
}

// GET /organizers/:id
func (d *deps) getOrganizer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	org, err := d.svc.GetOrganizer(c.Request.Context(), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizer": org})
}

// POST /organizers/:id/follow
func (d *deps) toggleFollow(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	following, err := d.svc.ToggleFollow(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"following": following})
}

// PATCH /organizers/me/profile
func (d *deps) updateOrganizerProfile(c *gin.Context) {
	var patch services.OrganizerPatch
	if !bindStrict(c, &patch) {
		return
	}
	u, err := d.svc.UpdateOrganizerProfile(c.Request.Context(), principal(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated.", "user": u})
}

// POST /organizers/me/reset-request
func (d *deps) requestReset(c *gin.Context) {
	var in services.ResetInput
	if !bindJSON(c, &in) {
		return
	}
	req, err := d.svc.RequestReset(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Reset request submitted.", "request": req})
}

// GET /organizers/me/reset-request
func (d *deps) myResetRequest(c *gin.Context) {
	req, err := d.svc.MyResetRequest(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}

/* -------------------- Admin -------------------- */

// POST /admin/organizers
func (d *deps) createOrganizer(c *gin.Context) {
	var in services.OrganizerInput
	if !bindJSON(c, &in) {
		return
	}
	out, err := d.svc.CreateOrganizer(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"message":      "Organizer created.",
		"organizer":    out.User,
		"tempPassword": out.TempPassword,
	})
}

// GET /admin/organizers
func (d *deps) adminOrganizers(c *gin.Context) {
	list, err := d.svc.AdminListOrganizers(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"organizers": list})
}

// PATCH /admin/organizers/:id/toggle
func (d *deps) toggleOrganizer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	disabled, err := d.svc.ToggleOrganizer(c.Request.Context(), principal(c), id)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"disabled": disabled})
}

// DELETE /admin/organizers/:id
func (d *deps) deleteOrganizer(c *gin.Context) {
	id, ok := idParam(c)
	if !ok {
		return
	}
	if err := d.svc.DeleteOrganizer(c.Request.Context(), principal(c), id); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Organizer deleted."})
}

// GET /admin/requests?status=pending
func (d *deps) resetRequests(c *gin.Context) {
	list, err := d.svc.ListResetRequests(c.Request.Context(), principal(c), c.Query("status"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"requests": list})
}

// POST /admin/requests/:id/resolve
func (d *deps) resolveReset(c *gin.Context) {
	var in services.ResetDecision
	if !bindJSON(c, &in) {
		return
	}
	out, err := d.svc.ResolveReset(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	body := gin.H{"message": "Request " + string(out.Request.Status) + ".", "request": out.Request}
	if out.NewPassword != "" {
		body["newPassword"] = out.NewPassword
	}
	c.JSON(http.StatusOK, body)
}

// PATCH /admin/requests/:id/note
func (d *deps) updateResetNote(c *gin.Context) {
	var in services.NoteInput
	if !bindJSON(c, &in) {
		return
	}
	req, err := d.svc.UpdateResetNote(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"request": req})
}
