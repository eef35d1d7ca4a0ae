package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"auction-marketplace/internal/domain"
)

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	query := `
        INSERT INTO users (username, email, password_hash, created_at)
        VALUES (?, ?, ?, ?)
    `
	res, err := s.db.ExecContext(ctx, query, user.Username, user.Email, user.PasswordHash, user.CreatedAt.UTC())
	if err != nil {
		if s.dialect.isDuplicateKey(err) {
			return fmt.Errorf("user %q: %w", user.Username, domain.ErrUserExists)
		}
		return fmt.Errorf("insert user: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	user.ID = id
	return nil
}

func (s *Store) GetUserByUsername(ctx context.Context, username string) (*domain.User, error) {
	query := `SELECT id, username, email, password_hash, created_at FROM users WHERE username = ?`

	var user domain.User
	err := s.db.QueryRowContext(ctx, query, username).Scan(
		&user.ID, &user.Username, &user.Email, &user.PasswordHash, &user.CreatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("user %q: %w", username, domain.ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &user, nil
}
