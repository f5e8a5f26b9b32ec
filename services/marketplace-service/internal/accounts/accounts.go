// Package accounts registers users and issues access tokens.
package accounts

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"github.com/allowork/allowork/libs/auth"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrInvalid            = errors.New("invalid registration")
	ErrEmailTaken         = errors.New("email already registered")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// maxPasswordBytes is the longest input bcrypt accepts.
const maxPasswordBytes = 72

type Service struct {
	store   storage.Store
	signer  *auth.Signer
	emitter *outbox.Emitter
	logger  *slog.Logger
	now     func() time.Time
	cost    int
}

func NewService(store storage.Store, signer *auth.Signer, emitter *outbox.Emitter, logger *slog.Logger) *Service {
	return &Service{store: store, signer: signer, emitter: emitter, logger: logger, now: time.Now, cost: bcrypt.DefaultCost}
}

type RegisterInput struct {
	Name        string     `json:"name"`
	Email       string     `json:"email"`
	Password    string     `json:"password"`
	PhoneNumber string     `json:"phone_number"`
	Role        model.Role `json:"role"`
	Location    string     `json:"location"`
	Specialty   string     `json:"specialty"`
}

type Session struct {
	Token     string     `json:"access_token"`
	ExpiresAt time.Time  `json:"expires_at"`
	User      model.User `json:"user"`
}

func (in *RegisterInput) normalize() error {
	in.Name = strings.TrimSpace(in.Name)
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.PhoneNumber = strings.TrimSpace(in.PhoneNumber)
	in.Location = strings.TrimSpace(in.Location)
	in.Specialty = strings.TrimSpace(in.Specialty)
	if in.Role == "" {
		in.Role = model.RoleClient
	}

	switch {
	case in.Name == "" || in.Email == "" || in.Password == "" || in.PhoneNumber == "":
		return fmt.Errorf("%w: name, email, password and phone number are required", ErrInvalid)
	case len(in.Password) < 6:
		return fmt.Errorf("%w: password must be at least 6 characters", ErrInvalid)
	case len(in.Password) > maxPasswordBytes:
		return fmt.Errorf("%w: password must be at most %d bytes", ErrInvalid, maxPasswordBytes)
	case in.Role != model.RoleClient && in.Role != model.RoleProvider:
		return fmt.Errorf("%w: role must be client or provider", ErrInvalid)
	case in.Location != "" && !model.IsQuartier(in.Location):
		return fmt.Errorf("%w: unknown quartier %q", ErrInvalid, in.Location)
	}
	if _, err := mail.ParseAddress(in.Email); err != nil {
		return fmt.Errorf("%w: invalid email", ErrInvalid)
	}
	if in.Role == model.RoleProvider {
		if !model.IsCategory(in.Specialty) {
			return fmt.Errorf("%w: providers need a known specialty", ErrInvalid)
		}
	} else {
		in.Specialty = ""
	}
	return nil
}

// Register creates the user and signs them in.
func (s *Service) Register(ctx context.Context, in RegisterInput) (Session, error) {
	if err := in.normalize(); err != nil {
		return Session{}, err
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.cost)
	if err != nil {
		return Session{}, fmt.Errorf("hash password: %w", err)
	}
	u := model.User{
		ID:           uuid.NewString(),
		Name:         in.Name,
		Email:        in.Email,
		PhoneNumber:  in.PhoneNumber,
		Role:         in.Role,
		Specialty:    in.Specialty,
		Location:     in.Location,
		PasswordHash: string(hash),
		CreatedAt:    s.now().UTC(),
	}
	if err := s.store.CreateUser(ctx, u); err != nil {
		if errors.Is(err, storage.ErrConflict) {
			return Session{}, ErrEmailTaken
		}
		return Session{}, err
	}
	s.emitter.Emit(ctx, "user", u.ID, outbox.TopicUserRegistered, map[string]any{
		"user_id":   u.ID,
		"role":      u.Role,
		"specialty": u.Specialty,
		"location":  u.Location,
	})
	s.logger.Info("user registered", "user_id", u.ID, "role", u.Role)
	return s.session(u)
}

func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	u, err := s.store.GetUserByEmail(ctx, strings.TrimSpace(email))
	if err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}
	if u.PasswordHash == "" || bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(password)) != nil {
		return Session{}, ErrInvalidCredentials
	}
	return s.session(u)
}

func (s *Service) Me(ctx context.Context, userID string) (model.User, error) {
	return s.store.GetUser(ctx, userID)
}

func (s *Service) session(u model.User) (Session, error) {
	token, exp, err := s.signer.Sign(u.ID, string(u.Role))
	if err != nil {
		return Session{}, err
	}
	return Session{Token: token, ExpiresAt: exp, User: u}, nil
}

// HashPassword hashes a password with the default bcrypt cost. It is used to
// give seeded users a known password.
func HashPassword(password string) (string, error) {
	hash, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hash), nil
}
