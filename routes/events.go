package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"felicity/models"
	"felicity/services"
)

// GET /events
func (d *deps) getEvents(c *gin.Context) {
	var q services.BrowseParams
	if err := c.ShouldBindQuery(&q); err != nil {
		respondError(c, bindError(err))
		return
	}
	events, err := d.svc.BrowseEvents(c.Request.Context(), principal(c), q)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GET /events/trending
func (d *deps) getTrending(c *gin.Context) {
	events, err := d.svc.TrendingEvents(c.Request.Context())
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events})
}

// GET /events/:id
func (d *deps) getEvent(c *gin.Context) {
	event, err := d.svc.GetEvent(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"event": event})
}

// POST /events
func (d *deps) createEvent(c *gin.Context) {
	var in services.EventInput
	if !bindJSON(c, &in) {
		return
	}
	event, err := d.svc.CreateEvent(c.Request.Context(), principal(c), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "event created!", "event": event})
}

// PATCH /events/:id
func (d *deps) updateEvent(c *gin.Context) {
	var patch services.EventPatch
	if !bindStrict(c, &patch) {
		return
	}
	event, err := d.svc.UpdateEvent(c.Request.Context(), principal(c), c.Param("id"), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event updated successfully!", "event": event})
}

// DELETE /events/:id
func (d *deps) deleteEvent(c *gin.Context) {
	if err := d.svc.DeleteEvent(c.Request.Context(), principal(c), c.Param("id")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Event deleted successfully!"})
}

// GET /events/:id/form
func (d *deps) getForm(c *gin.Context) {
	form, err := d.svc.GetForm(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"formschema": form})
}

// PUT /events/:id/form
func (d *deps) updateForm(c *gin.Context) {
	var req struct {
		FormSchema []models.FormField `json:"formschema"`
	}
	if !bindJSON(c, &req) {
		return
	}
	form, err := d.svc.UpdateForm(c.Request.Context(), principal(c), c.Param("id"), req.FormSchema)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Form updated.", "formschema": form})
}
