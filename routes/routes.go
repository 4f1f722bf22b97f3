package routes

import (
	"fmt"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"felicity/live"
	"felicity/middlewares"
	"felicity/models"
	"felicity/services"
)

// deps is what every handler needs.
type deps struct {
	svc *services.Service
	hub *live.Hub
}

type Options struct {
	// DailyQuota caps requests per user per day; 0 disables it.
	DailyQuota int
}

func RegisterRoutes(server *gin.Engine, svc *services.Service, hub *live.Hub, rdb *redis.Client, opts Options) {
	d := &deps{svc: svc, hub: hub}
	useJSONFieldNames()

	check := middlewares.AccountCheck(svc.CheckActive)
	optional := middlewares.OptionalAuth(check)
	admin := middlewares.RequireRole(models.RoleAdmin)

	// per-IP limit for everything
	globalLimiter := middlewares.NewRateLimiter(middlewares.LimiterConfig{
		RPS:     20,
		Burst:   40,
		IdleTTL: 3 * time.Minute,
	})
	server.Use(globalLimiter.Middleware(func(c *gin.Context) string {
		return "ip:" + c.ClientIP()
	}))

	// credential endpoints are much stricter
	authLimiter := middlewares.NewRateLimiter(middlewares.LimiterConfig{
		RPS:     0.5,
		Burst:   5,
		IdleTTL: 10 * time.Minute,
	})
	server.POST("/auth/register",
		authLimiter.Middleware(func(c *gin.Context) string { return "signup:" + c.ClientIP() }),
		d.register,
	)
	server.POST("/auth/login",
		authLimiter.Middleware(func(c *gin.Context) string { return "login:" + c.ClientIP() }),
		d.login,
	)

	// public reads; a token, when sent, unlocks the caller's drafts
	server.GET("/events", optional, d.getEvents)
	server.GET("/events/trending", d.getTrending)
	server.GET("/events/:id", optional, d.getEvent)
	server.GET("/events/:id/form", optional, d.getForm)
	server.GET("/organizers", d.getOrganizers)
	server.GET("/organizers/:id", d.getOrganizer)

	auth := server.Group("/")
	auth.Use(middlewares.Authenticate(check))

	userLimiter := middlewares.NewRateLimiter(middlewares.LimiterConfig{
		RPS:     5,
		Burst:   10,
		IdleTTL: 10 * time.Minute,
	})
	auth.Use(userLimiter.Middleware(func(c *gin.Context) string {
		return "u:" + strconv.FormatInt(c.GetInt64("userId"), 10)
	}))
	auth.Use(middlewares.Quota(rdb, middlewares.QuotaRule{
		Limit:  opts.DailyQuota,
		Window: 24 * time.Hour,
		KeyFn: func(c *gin.Context) string {
			uid := c.GetInt64("userId")
			if uid == 0 {
				return ""
			}
			return fmt.Sprintf("quota:user:%d:day", uid)
		},
	}))

	auth.GET("/auth/me", d.me)
	auth.GET("/users/me", d.me)
	auth.PATCH("/users/me", d.updateMe)
	auth.PUT("/users/me/password", d.changePassword)

	auth.POST("/events", d.createEvent)
	auth.PATCH("/events/:id", d.updateEvent)
	auth.DELETE("/events/:id", d.deleteEvent)
	auth.PUT("/events/:id/form", d.updateForm)

	auth.POST("/events/:id/registrations", d.registerForEvent)
	auth.GET("/events/:id/registrations", d.listParticipants)
	auth.GET("/events/:id/registrations/export", d.exportParticipants)

	auth.GET("/registrations/me", d.myRegistrations)
	auth.GET("/registrations/:ticketid", d.getTicket)
	auth.GET("/registrations/:ticketid/qr", d.ticketQR)
	auth.DELETE("/registrations/:ticketid", d.cancelRegistration)
	auth.POST("/registrations/:ticketid/payment/proof", d.submitProof)
	auth.PUT("/registrations/:ticketid/payment/status", d.resolvePayment)

	auth.POST("/events/:id/attendance/scan", d.scan)
	auth.POST("/events/:id/attendance/manual", d.manualCheckin)
	auth.GET("/events/:id/attendance/stats", d.attendanceStats)
	auth.GET("/events/:id/attendance/export", d.exportAttendance)
	auth.GET("/events/:id/attendance/live", d.liveAttendance)

	auth.POST("/uploads", d.upload)
	auth.GET("/uploads/:id", d.download)

	auth.POST("/organizers/:id/follow", d.toggleFollow)
	auth.GET("/organizers/me/profile", d.me)
	auth.PATCH("/organizers/me/profile", d.updateOrganizerProfile)
	auth.POST("/organizers/me/reset-request", d.requestReset)
	auth.GET("/organizers/me/reset-request", d.myResetRequest)

	adm := auth.Group("/admin", admin)
	adm.POST("/organizers", d.createOrganizer)
	adm.GET("/organizers", d.adminOrganizers)
	adm.PATCH("/organizers/:id/toggle", d.toggleOrganizer)
	adm.DELETE("/organizers/:id", d.deleteOrganizer)
	adm.GET("/requests", d.resetRequests)
	adm.POST("/requests/:id/resolve", d.resolveReset)
	adm.PATCH("/requests/:id/note", d.updateResetNote)
}
