package services

import (
	"context"
	"errors"
	"fmt"
	"net/mail"
	"regexp"
	"strconv"
	"time"

	"auction-marketplace/internal/domain"
	"auction-marketplace/pkg/logger"

	"github.com/golang-jwt/jwt/v4"
	"golang.org/x/crypto/bcrypt"
)

const tokenIssuer = "auction-marketplace"

var usernamePattern = regexp.MustCompile(`^[A-Za-z0-9_.-]{3,64}$`)

// UserService registers users and issues the bearer tokens that identify
// them to the bidding surfaces.
type UserService struct {
	users    domain.UserRepository
	secret   []byte
	ttl      time.Duration
	hashCost int
	log      logger.Logger
	now      func() time.Time
}

func NewUserService(users domain.UserRepository, jwtSecret string, ttl time.Duration, log logger.Logger) *UserService {
	return &UserService{
		users:    users,
		secret:   []byte(jwtSecret),
		ttl:      ttl,
		hashCost: bcrypt.DefaultCost,
		log:      log,
		now:      time.Now,
	}
}

// SetHashCost overrides the bcrypt cost.
func (s *UserService) SetHashCost(cost int) {
	s.hashCost = cost
}

func (s *UserService) Register(ctx context.Context, username, email, password string) (*domain.User, error) {
	if !usernamePattern.MatchString(username) {
		return nil, fmt.Errorf("%w: username must be 3-64 letters, digits, '_', '.' or '-'", domain.ErrInvalidUser)
	}
	if len(password) < 4 {
		return nil, fmt.Errorf("%w: password must be at least 4 characters", domain.ErrInvalidUser)
	}
	if len(password) > 72 {
		return nil, fmt.Errorf("%w: password must be at most 72 bytes", domain.ErrInvalidUser)
	}
	if email != "" {
		if _, err := mail.ParseAddress(email); err != nil {
			return nil, fmt.Errorf("%w: invalid email %q", domain.ErrInvalidUser, email)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(password), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	user := &domain.User{
		Username:     username,
		Email:        email,
		PasswordHash: string(hash),
		CreatedAt:    s.now(),
	}
	if err := s.users.CreateUser(ctx, user); err != nil {
		return nil, err
	}

	s.log.Info("User registered", "user_id", user.ID, "username", username)
	return user, nil
}

// Login checks the credentials and returns a signed token with the user id
// as subject.
func (s *UserService) Login(ctx context.Context, username, password string) (string, *domain.User, error) {
	user, err := s.users.GetUserByUsername(ctx, username)
	if errors.Is(err, domain.ErrUserNotFound) {
		return "", nil, domain.ErrInvalidCredentials
	}
	if err != nil {
		return "", nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return "", nil, domain.ErrInvalidCredentials
	}

	token, err := s.IssueToken(user.ID)
	if err != nil {
		return "", nil, err
	}
	return token, user, nil
}

func (s *UserService) IssueToken(userID int64) (string, error) {
	now := s.now()
	claims := jwt.RegisteredClaims{
		Issuer:    tokenIssuer,
		Subject:   strconv.FormatInt(userID, 10),
		IssuedAt:  jwt.NewNumericDate(now),
		ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
}

// Authenticate returns the user id carried by a valid token.
func (s *UserService) Authenticate(token string) (int64, error) {
	var claims jwt.RegisteredClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	})
	if err != nil || !parsed.Valid {
		return 0, domain.ErrInvalidToken
	}
	if !claims.VerifyIssuer(tokenIssuer, true) {
		return 0, domain.ErrInvalidToken
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return 0, domain.ErrInvalidToken
	}
	return userID, nil
}
