package auth

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/aaravsagar/agriatoo-core/internal/docstore"
)

var (
	ErrUserExists         = errors.New("user already exists")
	ErrUserNotFound       = errors.New("user not found")
	ErrInvalidCredentials = errors.New("invalid email or password")
	ErrInvalidRole        = errors.New("invalid role")
)

const usersCollection = "users"

// User is a marketplace account. Documents are keyed by email so the
// uniqueness constraint rides on the store's add semantics.
type User struct {
	ID           string    `json:"id"`
	Email        string    `json:"email"`
	Name         string    `json:"name"`
	Role         Role      `json:"role"`
	PasswordHash string    `json:"passwordHash"`
	Pincode      string    `json:"pincode,omitempty"`
	CreatedAt    time.Time `json:"createdAt"`
}

// UserService registers and authenticates marketplace accounts.
type UserService struct {
	store docstore.Store
	jwt   *JWTService
	log   *slog.Logger
}

func NewUserService(store docstore.Store, jwt *JWTService, log *slog.Logger) *UserService {
	return &UserService{store: store, jwt: jwt, log: log}
}

// Register creates the account and returns it with a fresh token pair.
func (s *UserService) Register(ctx context.Context, email, name, password string, role Role) (*User, *TokenPair, error) {
	const op = "auth.Register"

	if !ValidRole(role) {
		return nil, nil, fmt.Errorf("%s: role %q: %w", op, role, ErrInvalidRole)
	}
	hash, err := HashPassword(password)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	user := &User{
		ID:           uuid.NewString(),
		Email:        email,
		Name:         name,
		Role:         role,
		PasswordHash: hash,
		CreatedAt:    time.Now().UTC(),
	}

	if err := s.store.Add(ctx, usersCollection, email, user); err != nil {
		if errors.Is(err, docstore.ErrExists) {
			return nil, nil, fmt.Errorf("%s: %s: %w", op, email, ErrUserExists)
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.jwt.GeneratePair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user registered",
		slog.String("user_id", user.ID),
		slog.String("role", string(user.Role)))
	return user, pair, nil
}

// Login authenticates by email and password. Lookup misses and password
// mismatches collapse into one error so callers cannot probe for
// registered emails.
func (s *UserService) Login(ctx context.Context, email, password string) (*User, *TokenPair, error) {
	const op = "auth.Login"

	user, err := s.getByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
		}
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}
	if !CheckPassword(password, user.PasswordHash) {
		return nil, nil, fmt.Errorf("%s: %w", op, ErrInvalidCredentials)
	}

	pair, err := s.jwt.GeneratePair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, nil, fmt.Errorf("%s: %w", op, err)
	}

	s.log.Info("user logged in", slog.String("user_id", user.ID))
	return user, pair, nil
}

// Refresh exchanges a valid refresh token for a new pair. The user is
// re-read so a changed role takes effect on the next access token.
func (s *UserService) Refresh(ctx context.Context, refreshToken string) (*TokenPair, error) {
	const op = "auth.Refresh"

	userID, err := s.jwt.ValidateRefreshToken(refreshToken)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	user, err := s.getByID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}

	pair, err := s.jwt.GeneratePair(user.ID, user.Email, user.Role)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	return pair, nil
}

func (s *UserService) getByEmail(ctx context.Context, email string) (*User, error) {
	doc, err := s.store.Get(ctx, usersCollection, email)
	if errors.Is(err, docstore.ErrNotFound) {
		return nil, fmt.Errorf("%s: %w", email, ErrUserNotFound)
	}
	if err != nil {
		return nil, err
	}
	return decodeUser(doc)
}

func (s *UserService) getByID(ctx context.Context, userID string) (*User, error) {
	docs, err := s.store.GetAll(ctx, usersCollection)
	if err != nil {
		return nil, err
	}
	for _, doc := range docs {
		user, err := decodeUser(doc)
		if err != nil {
			continue
		}
		if user.ID == userID {
			return user, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", userID, ErrUserNotFound)
}

func decodeUser(doc json.RawMessage) (*User, error) {
	var user User
	if err := json.Unmarshal(doc, &user); err != nil {
		return nil, err
	}
	return &user, nil
}
