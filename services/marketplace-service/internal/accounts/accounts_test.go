package accounts

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/allowork/allowork/libs/auth"
	"github.com/allowork/allowork/services/marketplace-service/internal/model"
	"github.com/allowork/allowork/services/marketplace-service/internal/outbox"
	"github.com/allowork/allowork/services/marketplace-service/internal/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"
)

func newTestService(t *testing.T) (*Service, *auth.Signer, *outbox.MemoryRepository) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	store := storage.NewMemory()
	hash, err := bcrypt.GenerateFromPassword([]byte("demo1234"), bcrypt.MinCost)
	require.NoError(t, err)
	require.NoError(t, storage.SeedDemo(context.Background(), store, string(hash), time.Now()))
	signer, err := auth.NewSigner("0123456789abcdef-test", "allowork", 24*time.Hour)
	require.NoError(t, err)
	repo := outbox.NewMemoryRepository(10)
	svc := NewService(store, signer, outbox.NewEmitter(repo, logger), logger)
	svc.cost = bcrypt.MinCost
	return svc, signer, repo
}

func TestRegisterAndLogin(t *testing.T) {
	svc, signer, repo := newTestService(t)
	ctx := context.Background()

	sess, err := svc.Register(ctx, RegisterInput{
		Name:        "Awa Mba",
		Email:       " Awa@Example.ga ",
		Password:    "secret12",
		PhoneNumber: "077 12 34 56",
		Role:        model.RoleProvider,
		Specialty:   "Coiffure",
		Location:    "Glass",
	})
	require.NoError(t, err)
	assert.Equal(t, "awa@example.ga", sess.User.Email)
	assert.Equal(t, "Coiffure", sess.User.Specialty)

	claims, err := signer.Verify(sess.Token)
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, claims.UserID())
	assert.Equal(t, "provider", claims.Role)
	require.Len(t, repo.Pending(), 1)
	assert.Equal(t, outbox.TopicUserRegistered, repo.Pending()[0].EventType)

	login, err := svc.Login(ctx, "AWA@example.ga", "secret12")
	require.NoError(t, err)
	assert.Equal(t, sess.User.ID, login.User.ID)

	_, err = svc.Login(ctx, "awa@example.ga", "wrong")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody@example.ga", "secret12")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLoginSeededUser(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess, err := svc.Login(context.Background(), "client@gmail.com", "demo1234")
	require.NoError(t, err)
	assert.Equal(t, "u2", sess.User.ID)

	me, err := svc.Me(context.Background(), "u2")
	require.NoError(t, err)
	assert.Equal(t, "Client Test", me.Name)
}

func TestRegisterValidation(t *testing.T) {
	svc, _, _ := newTestService(t)
	valid := RegisterInput{Name: "A", Email: "a@b.ga", Password: "secret12", PhoneNumber: "1"}

	tests := []struct {
		name   string
		mutate func(*RegisterInput)
		want   error
	}{
		{"missing phone", func(in *RegisterInput) { in.PhoneNumber = "" }, ErrInvalid},
		{"short password", func(in *RegisterInput) { in.Password = "abc" }, ErrInvalid},
		{"password over bcrypt limit", func(in *RegisterInput) { in.Password = strings.Repeat("é", 40) }, ErrInvalid},
		{"admin role", func(in *RegisterInput) { in.Role = model.RoleAdmin }, ErrInvalid},
		{"bad email", func(in *RegisterInput) { in.Email = "not-an-email" }, ErrInvalid},
		{"unknown quartier", func(in *RegisterInput) { in.Location = "Paris" }, ErrInvalid},
		{"provider without specialty", func(in *RegisterInput) { in.Role = model.RoleProvider }, ErrInvalid},
		{"duplicate email", func(in *RegisterInput) { in.Email = "CLIENT@gmail.com" }, ErrEmailTaken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := valid
			tt.mutate(&in)
			_, err := svc.Register(context.Background(), in)
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestClientSpecialtyIsDropped(t *testing.T) {
	svc, _, _ := newTestService(t)
	sess, err := svc.Register(context.Background(), RegisterInput{
		Name: "B", Email: "b@b.ga", Password: "secret12", PhoneNumber: "1", Specialty: "Plomberie",
	})
	require.NoError(t, err)
	assert.Equal(t, model.RoleClient, sess.User.Role)
	assert.Empty(t, sess.User.Specialty)
}
