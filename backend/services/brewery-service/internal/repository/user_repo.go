package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"

	libdb "github.com/FilipKaczor/iot-project-backend/backend/libs/db"
	"github.com/FilipKaczor/iot-project-backend/backend/services/brewery-service/internal/models"
)

var (
	// ErrUserNotFound represents missing user rows.
	ErrUserNotFound = errors.New("user not found")
	// ErrDuplicateEmail is returned when the email unique constraint fires.
	ErrDuplicateEmail = errors.New("email already exists")
	// ErrDuplicateUsername is returned when the username unique constraint fires.
	ErrDuplicateUsername = errors.New("username already exists")
)

const userColumns = `id, email, username, hashed_password, full_name, is_active, created_at`

// UserRepository handles reads and inserts for the users table.
type UserRepository struct {
	db *sql.DB
}

// NewUserRepository returns repository instance.
func NewUserRepository(db *sql.DB) *UserRepository {
	return &UserRepository{db: db}
}

// Create inserts a new user.
func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	user.Email = strings.ToLower(strings.TrimSpace(user.Email))
	const query = `
		INSERT INTO users (email, username, hashed_password, full_name)
		VALUES ($1, $2, $3, $4)
		RETURNING id, is_active, created_at
	`
	err := r.db.QueryRowContext(ctx, query, user.Email, user.Username, user.HashedPassword, user.FullName).
		Scan(&user.ID, &user.IsActive, &user.CreatedAt)
	switch {
	case err == nil:
		return nil
	case libdb.IsUniqueViolation(err, usersEmailKey):
		return ErrDuplicateEmail
	case libdb.IsUniqueViolation(err, usersUsernameKey):
		return ErrDuplicateUsername
	default:
		return storageErr("insert user", err)
	}
}

// GetByEmail fetches a user by email.
func (r *UserRepository) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE email = $1 LIMIT 1`
	return r.getOne(ctx, query, strings.ToLower(strings.TrimSpace(email)))
}

// GetByUsername fetches a user by username.
func (r *UserRepository) GetByUsername(ctx context.Context, username string) (*models.User, error) {
	const query = `SELECT ` + userColumns + ` FROM users WHERE username = $1 LIMIT 1`
	return r.getOne(ctx, query, username)
}

func (r *UserRepository) getOne(ctx context.Context, query string, arg interface{}) (*models.User, error) {
	var (
		user     models.User
		fullName sql.NullString
	)
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&user.ID,
		&user.Email,
		&user.Username,
		&user.HashedPassword,
		&fullName,
		&user.IsActive,
		&user.CreatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrUserNotFound
		}
		return nil, storageErr("select user", err)
	}
	if fullName.Valid {
		user.FullName = &fullName.String
	}
	return &user, nil
}
