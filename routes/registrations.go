package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"felicity/services"
)

// POST /events/:id/registrations
func (d *deps) registerForEvent(c *gin.Context) {
	var in services.RegisterInput
	if c.Request.ContentLength != 0 && !bindJSON(c, &in) {
		return
	}
	ticket, err := d.svc.Register(c.Request.Context(), principal(c), c.Param("id"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "Registered!", "ticket": ticket})
}

// GET /events/:id/registrations
func (d *deps) listParticipants(c *gin.Context) {
	rows, err := d.svc.ListParticipants(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"participants": rows})
}

// GET /events/:id/registrations/export
func (d *deps) exportParticipants(c *gin.Context) {
	out, err := d.svc.ExportParticipants(c.Request.Context(), principal(c), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}
	sendCSV(c, out)
}

// GET /registrations/me
func (d *deps) myRegistrations(c *gin.Context) {
	regs, err := d.svc.MyRegistrations(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registrations": regs})
}

// GET /registrations/:ticketid
func (d *deps) getTicket(c *gin.Context) {
	reg, err := d.svc.GetTicket(c.Request.Context(), principal(c), c.Param("ticketid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"registration": reg})
}

// GET /registrations/:ticketid/qr
func (d *deps) ticketQR(c *gin.Context) {
	png, err := d.svc.TicketQR(c.Request.Context(), principal(c), c.Param("ticketid"))
	if err != nil {
		respondError(c, err)
		return
	}
	c.Data(http.StatusOK, "image/png", png)
}

// DELETE /registrations/:ticketid
func (d *deps) cancelRegistration(c *gin.Context) {
	if err := d.svc.CancelRegistration(c.Request.Context(), principal(c), c.Param("ticketid")); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Cancelled!"})
}

// POST /registrations/:ticketid/payment/proof accepts either a multipart
// "file" or {"fileId"} naming an earlier upload.
func (d *deps) submitProof(c *gin.Context) {
	ctx := c.Request.Context()
	ticketID := c.Param("ticketid")

	if fh, err := c.FormFile("file"); err == nil {
		f, err := fh.Open()
		if err != nil {
			respondError(c, services.Invalid("Could not read upload."))
			return
		}
		defer f.Close()
		reg, err := d.svc.UploadProof(ctx, principal(c), ticketID, fh.Filename, f)
		if err != nil {
			respondError(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "Proof uploaded.", "registration": reg})
		return
	}

	var in services.ProofInput
	if !bindJSON(c, &in) {
		return
	}
	reg, err := d.svc.SubmitProof(ctx, principal(c), ticketID, in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Proof uploaded.", "registration": reg})
}

// PUT /registrations/:ticketid/payment/status
func (d *deps) resolvePayment(c *gin.Context) {
	var in services.PaymentDecision
	if !bindJSON(c, &in) {
		return
	}
	reg, err := d.svc.ResolvePayment(c.Request.Context(), principal(c), c.Param("ticketid"), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Payment " + string(reg.Status) + ".", "registration": reg})
}
