package routes

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"felicity/services"
)

// POST /auth/register
func (d *deps) register(c *gin.Context) {
	var in services.SignupInput
	if !bindJSON(c, &in) {
		return
	}
	sess, err := d.svc.Signup(c.Request.Context(), in)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusCreated, gin.H{"message": "user created successfully", "token": sess.Token, "user": sess.User})
}

// POST /auth/login
func (d *deps) login(c *gin.Context) {
	var req struct {
		Email    string `json:"email" binding:"required"`
		Password string `json:"password" binding:"required"`
	}
	if !bindJSON(c, &req) {
		return
	}
	sess, err := d.svc.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Login successful!", "token": sess.Token, "user": sess.User})
}

// GET /auth/me, /users/me, /organizers/me/profile
func (d *deps) me(c *gin.Context) {
	u, err := d.svc.Me(c.Request.Context(), principal(c))
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"user": u})
}

// PATCH /users/me
func (d *deps) updateMe(c *gin.Context) {
	var patch services.ParticipantPatch
	if !bindStrict(c, &patch) {
		return
	}
	u, err := d.svc.UpdateParticipant(c.Request.Context(), principal(c), patch)
	if err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Profile updated.", "user": u})
}

// PUT /users/me/password
func (d *deps) changePassword(c *gin.Context) {
	var in services.PasswordChange
	if !bindJSON(c, &in) {
		return
	}
	if err := d.svc.ChangePassword(c.Request.Context(), principal(c), in); err != nil {
		respondError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "Password changed."})
}
