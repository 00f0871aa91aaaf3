package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gofrs/uuid/v5"
	"github.com/jackc/pgx/v5"

	"github.com/walkiger/storyforge/internal/errs"
	"github.com/walkiger/storyforge/internal/model"
)

const userCols = `id, email, username, password_hash, first_name, last_name, is_admin, created_at`

// UserRepo implements UserRepository using PostgreSQL.
type UserRepo struct{ db *DB }

// NewUserRepo constructs a user repository.
func NewUserRepo(db *DB) *UserRepo { return &UserRepo{db: db} }

// Create inserts a new user row inside a transaction. A uniqueness violation
// rolls back and surfaces as *errs.ConflictError, never as an internal fault.
func (r *UserRepo) Create(ctx context.Context, u *model.User) error {
	tx, err := r.db.Pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	const q = `
INSERT INTO users (id, email, username, password_hash, first_name, last_name, is_admin)
VALUES ($1, $2, $3, $4, $5, $6, $7)`
	if _, err := tx.Exec(ctx, q, u.ID, u.Email, u.Username, u.PasswordHash, u.FirstName, u.LastName, u.IsAdmin); err != nil {
		if ce := conflictError(err); ce != nil {
			return ce
		}
		return err
	}
	return tx.Commit(ctx)
}

// FindByID selects a user by ID.
func (r *UserRepo) FindByID(ctx context.Context, id uuid.UUID) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE id=$1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, id))
}

// FindByEmail selects a user by email, case-insensitively.
func (r *UserRepo) FindByEmail(ctx context.Context, email string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(email)=lower($1)`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, email))
}

// FindByUsername selects a user by username, case-insensitively.
func (r *UserRepo) FindByUsername(ctx context.Context, username string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(username)=lower($1)`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, username))
}

// FindByEmailOrUsername returns an existing user colliding with either
// identifier. One query keeps the registration race window as narrow as the
// store allows; the unique indexes close it for good.
func (r *UserRepo) FindByEmailOrUsername(ctx context.Context, email, username string) (*model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users WHERE lower(email)=lower($1) OR lower(username)=lower($2) LIMIT 1`
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, email, username))
}

// UpdatePasswordHash replaces the stored hash for the user.
func (r *UserRepo) UpdatePasswordHash(ctx context.Context, id uuid.UUID, hash string) error {
	const q = `UPDATE users SET password_hash=$2 WHERE id=$1`
	tag, err := r.db.Pool.Exec(ctx, q, id, hash)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errs.ErrNotFound
	}
	return nil
}

// UpdateProfile applies only the allow-listed fields present in upd.
func (r *UserRepo) UpdateProfile(ctx context.Context, id uuid.UUID, upd model.ProfileUpdate) (*model.User, error) {
	if upd.IsEmpty() {
		return r.FindByID(ctx, id)
	}

	args := []any{id}
	set := make([]string, 0, 3)
	add := func(col string, v *string) {
		if v != nil {
			args = append(args, *v)
			set = append(set, fmt.Sprintf("%s=$%d", col, len(args)))
		}
	}
	add("username", upd.Username)
	add("first_name", upd.FirstName)
	add("last_name", upd.LastName)

	q := `UPDATE users SET ` + strings.Join(set, ", ") + ` WHERE id=$1 RETURNING ` + userCols
	return r.scanOne(r.db.Pool.QueryRow(ctx, q, args...))
}

// List returns all users ordered by creation time.
func (r *UserRepo) List(ctx context.Context) ([]model.User, error) {
	const q = `SELECT ` + userCols + ` FROM users ORDER BY created_at`
	rows, err := r.db.Pool.Query(ctx, q)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []model.User
	for rows.Next() {
		var u model.User
		if err := rows.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsAdmin, &u.CreatedAt); err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (r *UserRepo) scanOne(row pgx.Row) (*model.User, error) {
	var u model.User
	if err := row.Scan(&u.ID, &u.Email, &u.Username, &u.PasswordHash, &u.FirstName, &u.LastName, &u.IsAdmin, &u.CreatedAt); err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, err
		}
		if ce := conflictError(err); ce != nil {
			return nil, ce
		}
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, errs.ErrNotFound
		}
		return nil, err
	}
	return &u, nil
}
