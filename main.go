package main

import (
	"context"
	"log"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"felicity/config"
	"felicity/db"
	"felicity/live"
	"felicity/logger"
	"felicity/middlewares"
	"felicity/models"
	"felicity/routes"
	"felicity/services"
	"felicity/storage"
	"felicity/utils"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatal("config error:", err)
	}
	logger.SetLogLevel(cfg.Env)
	utils.ConfigureTokens(cfg.Auth.Secret, cfg.Auth.TokenTTL)
	if cfg.Env == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()

	// Postgres: users via database/sql, reset requests via gorm on the same pool
	sqldb, err := db.OpenPostgres(ctx, cfg.PGDSN)
	if err != nil {
		log.Fatal("Postgres error:", err)
	}
	defer sqldb.Close()
	gdb, err := db.OpenGorm(sqldb)
	if err != nil {
		log.Fatal("gorm error:", err)
	}

	// Mongo: events, registrations, GridFS uploads
	mg, mdb, err := db.OpenMongo(ctx, cfg.Mongo.URI, cfg.Mongo.Database)
	if err != nil {
		log.Fatal("Mongo error:", err)
	}
	defer func() { _ = mg.Disconnect(context.Background()) }()

	rdb := redis.NewClient(&redis.Options{Addr: cfg.Redis})
	if err := rdb.Ping(ctx).Err(); err != nil {
		// the cache and quota degrade to pass-through without Redis
		logger.Warn.Printf("Redis unavailable at %s: %v", cfg.Redis, err)
	}

	var files storage.Store
	switch cfg.Upload.Backend {
	case "s3":
		files, err = storage.NewS3(cfg.Upload.S3Region, cfg.Upload.S3Bucket)
	default:
		files, err = storage.NewGridFS(mdb)
	}
	if err != nil {
		log.Fatal("storage error:", err)
	}

	hub := live.NewHub(nil)
	policy := storage.DefaultProofPolicy
	policy.MaxBytes = cfg.Upload.MaxBytes

	svc := services.New(services.Deps{
		Events:        models.NewMongoEventRepository(mdb.Collection("events")),
		Registrations: models.NewMongoRegistrationRepository(mdb.Collection("registrations")),
		Users:         models.NewSQLUserRepository(sqldb),
		Resets:        models.NewGormResetRequestRepository(gdb),
		Files:         files,
		Cache:         utils.NewCacheInvalidator(rdb),
		Live:          hub,
		UploadPolicy:  policy,
		PublicURL:     cfg.Upload.PublicURL,
	})
	if err := svc.SeedAdmin(ctx, cfg.AdminEmail, cfg.AdminPassword); err != nil {
		log.Fatal("admin seed error:", err)
	}

	server := gin.Default()
	server.MaxMultipartMemory = cfg.Upload.MaxBytes + 1<<20
	server.Use(middlewares.ResponseCache(rdb, cfg.Cache))
	routes.RegisterRoutes(server, svc, hub, rdb, routes.Options{DailyQuota: cfg.Quota})

	logger.Info.Printf("Felicity listening on :%s (%s)", cfg.Port, cfg.Env)
	if err := server.Run(":" + cfg.Port); err != nil {
		log.Fatal("gin.Run error:", err)
	}
}
