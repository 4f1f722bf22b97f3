package db

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/lib/pq"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"felicity/models"
)

// OpenPostgres connects, pings and creates the account tables.
func OpenPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	sqldb, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}
	if err := sqldb.PingContext(ctx); err != nil {
		return nil, fmt.Errorf("postgres ping: %w", err)
	}
	sqldb.SetMaxOpenConns(20)
	sqldb.SetMaxIdleConns(10)

	if err := createTables(ctx, sqldb); err != nil {
		return nil, err
	}
	return sqldb, nil
}

func createTables(ctx context.Context, sqldb *sql.DB) error {
	createUsersTable := `
	CREATE TABLE IF NOT EXISTS users (
		id BIGSERIAL PRIMARY KEY,
		email TEXT NOT NULL UNIQUE,
		password TEXT NOT NULL,
		role TEXT NOT NULL CHECK (role IN ('participant', 'organizer', 'admin')),
		first_name TEXT,
		last_name TEXT,
		contact TEXT,
		college TEXT,
		affiliation TEXT CHECK (affiliation IN ('IIIT', 'External')),
		interests TEXT[] NOT NULL DEFAULT '{}',
		org_name TEXT,
		category TEXT,
		description TEXT,
		contact_email TEXT,
		disabled BOOLEAN NOT NULL DEFAULT FALSE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	);`
	if _, err := sqldb.ExecContext(ctx, createUsersTable); err != nil {
		return fmt.Errorf("create users table: %w", err)
	}

	createFollowsTable := `
	CREATE TABLE IF NOT EXISTS follows (
		user_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		organizer_id BIGINT NOT NULL REFERENCES users(id) ON DELETE CASCADE,
		PRIMARY KEY (user_id, organizer_id)
	);`
	if _, err := sqldb.ExecContext(ctx, createFollowsTable); err != nil {
		return fmt.Errorf("create follows table: %w", err)
	}
	return nil
}

// OpenGorm shares the lib/pq pool with gorm and migrates the reset-request table.
func OpenGorm(sqldb *sql.DB) (*gorm.DB, error) {
	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqldb}), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Warn),
	})
	if err != nil {
		return nil, fmt.Errorf("gorm.Open: %w", err)
	}
	if err := models.MigrateResetRequests(gdb); err != nil {
		return nil, fmt.Errorf("migrate reset_requests: %w", err)
	}
	return gdb, nil
}

// OpenMongo connects, pings and installs collection indexes.
func OpenMongo(ctx context.Context, uri, database string) (*mongo.Client, *mongo.Database, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	cli, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo.Connect: %w", err)
	}
	if err := cli.Ping(ctx, nil); err != nil {
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	mdb := cli.Database(database)
	if err := models.EnsureEventIndexes(ctx, mdb.Collection("events")); err != nil {
		return nil, nil, fmt.Errorf("event indexes: %w", err)
	}
	if err := models.EnsureRegistrationIndexes(ctx, mdb.Collection("registrations")); err != nil {
		return nil, nil, fmt.Errorf("registration indexes: %w", err)
	}
	return cli, mdb, nil
}
