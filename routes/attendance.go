package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"felicity/services"
)

// POST /events/:id/attendance/scan
func (d *deps) scan(c *gin.Context) {
	var req struct {
		TicketID string `json:"ticketid" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	res, err := d.svc.ScanTicket(c.Request.Context(), principal(c), c.Param("id"), req.TicketID)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Checked in.", "checkin": res})
}

// POST /events/:id/attendance/manual
func (d *deps) manualCheckin(c *gin.Context) {
	var in services.ManualCheckin
	if !bindJSON(c, &in) {
		return
	}
	res, err := d.svc.ManualCheckIn(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Checked in.", "checkin": res})
}

// GET /events/:id/attendance/stats
func (d *deps) attendanceStats(c *gin.Context) {
	stats, err := d.svc.AttendanceStats(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, stats)
}

// GET /events/:id/attendance/export
func (d *deps) exportAttendance(c *gin.Context) {
	out, err := d.svc.ExportAttendance(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendCSV(c, out)
}

// GET /events/:id/attendance/live upgrades to a websocket feed of
// check-ins for the event.
func (d *deps) liveAttendance(c *gin.Context) {
	eventID := c.Param("id")
	if err := d.svc.WatchAttendance(c.Request.Context(), principal(c), eventID); err != nil {
		respondError(c, err)
		return
	}
	if d.hub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"message": "Live attendance is not available."})
		return
	}
	// the upgrader has already answered on failure
	_ = d.hub.Serve(c.Writer, c.Request, eventID)
}
