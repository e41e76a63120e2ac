package postgres

import (
	"context"
	"errors"
	"strings"
	"time"

	"rentdesk/internal/models"
	"rentdesk/internal/store"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"golang.org/x/crypto/bcrypt"
)

const defaultSessionTTL = 8 * time.Hour

func (s *Store) Login(ctx context.Context, input store.LoginInput) (store.LoginResult, error) {
	var user models.User
	var passwordHash string
	row := s.pool.QueryRow(ctx, `
		SELECT u.user_id, u.agency_id, u.role, u.email, u.full_name, u.phone, u.active, u.created_at, u.password_hash
		FROM users u
		JOIN agencies a ON a.agency_id = u.agency_id
		WHERE u.agency_id = $1 AND lower(u.email) = lower($2) AND u.active = TRUE AND a.active = TRUE
	`, input.AgencyID, strings.TrimSpace(input.Email))
	if err := row.Scan(&user.UserID, &user.AgencyID, &user.Role, &user.Email, &user.FullName, &user.Phone, &user.Active, &user.CreatedAt, &passwordHash); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return store.LoginResult{}, store.ErrInvalidCredentials
		}
		return store.LoginResult{}, err
	}

	if err := bcrypt.CompareHashAndPassword([]byte(passwordHash), []byte(input.Password)); err != nil {
		return store.LoginResult{}, store.ErrInvalidCredentials
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}
	session := models.Session{
		SessionID: uuid.NewString(),
		UserID:    user.UserID,
		AgencyID:  user.AgencyID,
		Role:      user.Role,
		ExpiresAt: s.now().Add(ttl),
	}
	_, err := s.pool.Exec(ctx, `
		INSERT INTO sessions (session_id, user_id, expires_at)
		VALUES ($1, $2, $3)
	`, session.SessionID, session.UserID, session.ExpiresAt)
	if err != nil {
		return store.LoginResult{}, err
	}
	return store.LoginResult{User: user, Session: session}, nil
}

func (s *Store) GetSession(ctx context.Context, sessionID string) (models.Session, error) {
	var session models.Session
	row := s.pool.QueryRow(ctx, `
		SELECT s.session_id, s.user_id, u.agency_id, u.role, s.expires_at
		FROM sessions s
		JOIN users u ON u.user_id = s.user_id
		WHERE s.session_id = $1 AND s.expires_at > NOW() AND u.active = TRUE
	`, sessionID)
	if err := row.Scan(&session.SessionID, &session.UserID, &session.AgencyID, &session.Role, &session.ExpiresAt); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.Session{}, store.ErrSessionNotFound
		}
		return models.Session{}, err
	}
	return session, nil
}

func (s *Store) DeleteSession(ctx context.Context, sessionID string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM sessions WHERE session_id = $1`, sessionID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return store.ErrSessionNotFound
	}
	return nil
}

func (s *Store) GetUser(ctx context.Context, agencyID, userID string) (models.User, error) {
	user, err := scanUser(s.pool.QueryRow(ctx, `
		SELECT user_id, agency_id, role, email, full_name, phone, active, created_at
		FROM users
		WHERE user_id = $1 AND agency_id = $2
	`, userID, agencyID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return models.User{}, store.ErrUserNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, user models.User, passwordHash string) (models.User, error) {
	if user.UserID == "" {
		user.UserID = uuid.NewString()
	}
	user.Email = strings.TrimSpace(user.Email)
	user.Active = true
	user.CreatedAt = s.now()
	_, err := s.pool.Exec(ctx, `
		INSERT INTO users (user_id, agency_id, role, email, full_name, phone, password_hash, active, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, TRUE, $8)
	`, user.UserID, user.AgencyID, user.Role, user.Email, user.FullName, user.Phone, passwordHash, user.CreatedAt)
	if err != nil {
		if isUniqueViolation(err) {
			return models.User{}, store.ErrConflict
		}
		return models.User{}, err
	}
	return user, nil
}

func (s *Store) ListUsers(ctx context.Context, agencyID, role string) ([]models.User, error) {
	query := `
		SELECT user_id, agency_id, role, email, full_name, phone, active, created_at
		FROM users
		WHERE agency_id = $1
	`
	args := []interface{}{agencyID}
	if role != "" {
		query += " AND role = $2"
		args = append(args, role)
	}
	query += " ORDER BY full_name ASC, email ASC"

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectUsers(rows)
}

func scanUser(row pgx.Row) (models.User, error) {
	var user models.User
	err := row.Scan(&user.UserID, &user.AgencyID, &user.Role, &user.Email, &user.FullName, &user.Phone, &user.Active, &user.CreatedAt)
	return user, err
}
