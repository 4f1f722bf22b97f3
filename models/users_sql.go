package models

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/lib/pq"

	"felicity/utils"
)

type sqlUserRepo struct{ db *sql.DB }

func NewSQLUserRepository(db *sql.DB) UserRepository { return &sqlUserRepo{db} }

const userColumns = `id, email, password, role,
	first_name, last_name, contact, college, affiliation, interests,
	org_name, category, description, contact_email, disabled, created_at,
	ARRAY(SELECT organizer_id FROM follows f WHERE f.user_id = users.id ORDER BY organizer_id)`

// isUniqueViolation reports a Postgres 23505 error.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (User, error) {
	var u User
	var first, last, contact, college, affiliation sql.NullString
	var orgName, category, description, contactEmail sql.NullString
	var interests []string
	var following []int64
	var disabled bool
	err := row.Scan(&u.ID, &u.Email, &u.Password, &u.Role,
		&first, &last, &contact, &college, &affiliation, pq.Array(&interests),
		&orgName, &category, &description, &contactEmail, &disabled, &u.CreatedAt,
		pq.Array(&following))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return User{}, ErrNotFound
		}
		return User{}, err
	}

	switch u.Role {
	case RoleParticipant:
		if interests == nil {
			interests = []string{}
		}
		if following == nil {
			following = []int64{}
		}
		u.Participant = &ParticipantProfile{
			FirstName:   first.String,
			LastName:    last.String,
			Contact:     contact.String,
			College:     college.String,
			Affiliation: Affiliation(affiliation.String),
			Interests:   interests,
			Following:   following,
		}
	case RoleOrganizer:
		u.Organizer = &OrganizerProfile{
			Name:         orgName.String,
			Category:     category.String,
			Description:  description.String,
			ContactEmail: contactEmail.String,
			Contact:      contact.String,
			Disabled:     disabled,
		}
	}
	return u, nil
}

func (r *sqlUserRepo) Create(ctx context.Context, u *User) error {
	hashed, err := utils.HashPassword(u.Password)
	if err != nil {
		return err
	}
	u.Password = hashed
	u.Email = strings.ToLower(strings.TrimSpace(u.Email))

	var first, last, contact, college, affiliation string
	var orgName, category, description, contactEmail string
	var interests []string
	var disabled bool
	if p := u.Participant; p != nil {
		first, last, contact, college, affiliation = p.FirstName, p.LastName, p.Contact, p.College, string(p.Affiliation)
		interests = p.Interests
	}
	if o := u.Organizer; o != nil {
		orgName, category, description, contactEmail = o.Name, o.Category, o.Description, o.ContactEmail
		contact, disabled = o.Contact, o.Disabled
	}
	if interests == nil {
		interests = []string{}
	}

	err = r.db.QueryRowContext(ctx, `
		INSERT INTO users(email, password, role,
			first_name, last_name, contact, college, affiliation, interests,
			org_name, category, description, contact_email, disabled)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
		RETURNING id, created_at`,
		u.Email, u.Password, u.Role,
		nullable(first), nullable(last), nullable(contact), nullable(college), nullable(affiliation), pq.Array(interests),
		nullable(orgName), nullable(category), nullable(description), nullable(contactEmail), disabled,
	).Scan(&u.ID, &u.CreatedAt)
	if isUniqueViolation(err) {
		return ErrEmailTaken
	}
	return err
}

func (r *sqlUserRepo) ValidateCredentials(ctx context.Context, email, plain string) (User, error) {
	u, err := r.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return User{}, ErrInvalidLogin
		}
		return User{}, err
	}
	if !utils.CheckPasswordHash(plain, u.Password) {
		return User{}, ErrInvalidLogin
	}
	return u, nil
}

func (r *sqlUserRepo) GetByID(ctx context.Context, id int64) (User, error) {
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE id=$1`, id))
}

func (r *sqlUserRepo) GetByEmail(ctx context.Context, email string) (User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	return scanUser(r.db.QueryRowContext(ctx, `SELECT `+userColumns+` FROM users WHERE email=$1`, email))
}

func (r *sqlUserRepo) ListByRole(ctx context.Context, role Role) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userColumns+` FROM users WHERE role=$1 ORDER BY id`, role)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := []User{}
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

func (r *sqlUserRepo) exec(ctx context.Context, query string, args ...any) error {
	res, err := r.db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func (r *sqlUserRepo) UpdateParticipant(ctx context.Context, id int64, p ParticipantProfile) error {
	interests := p.Interests
	if interests == nil {
		interests = []string{}
	}
	return r.exec(ctx, `
		UPDATE users SET first_name=$2, last_name=$3, contact=$4, college=$5, interests=$6
		WHERE id=$1 AND role='participant'`,
		id, nullable(p.FirstName), nullable(p.LastName), nullable(p.Contact), nullable(p.College), pq.Array(interests))
}

func (r *sqlUserRepo) UpdateOrganizer(ctx context.Context, id int64, o OrganizerProfile) error {
	return r.exec(ctx, `
		UPDATE users SET org_name=$2, category=$3, description=$4, contact_email=$5, contact=$6
		WHERE id=$1 AND role='organizer'`,
		id, nullable(o.Name), nullable(o.Category), nullable(o.Description), nullable(o.ContactEmail), nullable(o.Contact))
}

func (r *sqlUserRepo) SetPassword(ctx context.Context, id int64, plain string) error {
	hashed, err := utils.HashPassword(plain)
	if err != nil {
		return err
	}
	return r.exec(ctx, `UPDATE users SET password=$2 WHERE id=$1`, id, hashed)
}

func (r *sqlUserRepo) SetDisabled(ctx context.Context, id int64, disabled bool) error {
	return r.exec(ctx, `UPDATE users SET disabled=$2 WHERE id=$1 AND role='organizer'`, id, disabled)
}

func (r *sqlUserRepo) Delete(ctx context.Context, id int64) error {
	return r.exec(ctx, `DELETE FROM users WHERE id=$1`, id)
}

func (r *sqlUserRepo) ToggleFollow(ctx context.Context, userID, organizerID int64) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	res, err := r.db.ExecContext(ctx, `DELETE FROM follows WHERE user_id=$1 AND organizer_id=$2`, userID, organizerID)
	if err != nil {
		return false, err
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return false, nil
	}
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO follows(user_id, organizer_id) VALUES ($1,$2)
		ON CONFLICT DO NOTHING`, userID, organizerID)
	if err != nil {
		return false, err
	}
	return true, nil
}
