package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"path/filepath"
	"testing"
	"time"

	"radiochat/internal/auth"
	"radiochat/internal/config"
	"radiochat/internal/db"
	"radiochat/internal/models"
	"radiochat/internal/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	gdb, err := db.Connect("sqlite:" + filepath.Join(t.TempDir(), "svc.db"))
	require.NoError(t, err)
	require.NoError(t, db.Migrate(gdb))
	return gdb
}

func testConfig() config.Config {
	return config.Config{JWTSecret: "svc-secret", AccessTokenTTLMinutes: 15, RefreshTokenTTLDays: 7, ChallengeTTLSeconds: 60}
}

func TestRegister_Validation(t *testing.T) {
	svc := NewUserService(newTestDB(t), testConfig())
	ctx := context.Background()

	tests := []struct {
		name    string
		in      RegisterInput
		wantErr error
	}{
		{"short username", RegisterInput{Username: "ab", Password: "password1"}, ErrInvalidUsername},
		{"bad chars", RegisterInput{Username: "a b c", Password: "password1"}, ErrInvalidUsername},
		{"no credential", RegisterInput{Username: "alice"}, ErrMissingCredential},
		{"weak password", RegisterInput{Username: "alice", Password: "short"}, ErrWeakPassword},
		{"bad key", RegisterInput{Username: "alice", PublicKey: "AAAA"}, ErrInvalidKey},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Register(ctx, tt.in)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestPasswordLoginAndRefresh(t *testing.T) {
	cfg := testConfig()
	svc := NewUserService(newTestDB(t), cfg)
	ctx := context.Background()

	reg, err := svc.Register(ctx, RegisterInput{Username: "alice", Password: "password1"})
	require.NoError(t, err)
	assert.NotEmpty(t, reg.UserID)
	claims, err := auth.ParseAccessToken(reg.Token, cfg.JWTSecret)
	require.NoError(t, err)
	assert.Equal(t, reg.UserID, claims.UserID)
	assert.Equal(t, "alice", claims.Username)

	_, err = svc.Register(ctx, RegisterInput{Username: "alice", Password: "password2"})
	assert.ErrorIs(t, err, ErrUsernameTaken)

	_, err = svc.Login(ctx, "alice", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Login(ctx, "nobody", "password1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	login, err := svc.Login(ctx, "alice", "password1")
	require.NoError(t, err)

	rotated, err := svc.RefreshTokens(ctx, login.RefreshToken)
	require.NoError(t, err)
	assert.NotEqual(t, login.RefreshToken, rotated.RefreshToken)

	_, err = svc.RefreshTokens(ctx, login.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidCredentials, "old refresh token is revoked")
}

func TestChallengeVerify_Ed25519(t *testing.T) {
	cfg := testConfig()
	svc := NewUserService(newTestDB(t), cfg)
	ctx := context.Background()

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	pubB64 := base64.StdEncoding.EncodeToString(pub)
	_, err = svc.Register(ctx, RegisterInput{Username: "bob", PublicKey: pubB64})
	require.NoError(t, err)

	sign := func(challenge string) string {
		return base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(challenge)))
	}

	_, err = svc.Verify(ctx, "bob", sign("anything"), "")
	assert.ErrorIs(t, err, ErrChallengeExpired, "no challenge issued yet")

	challenge, err := svc.Challenge(ctx, "bob")
	require.NoError(t, err)
	res, err := svc.Verify(ctx, "bob", sign(challenge), pubB64)
	require.NoError(t, err)
	assert.Equal(t, "bob", res.Username)

	_, err = svc.Verify(ctx, "bob", sign(challenge), "")
	assert.ErrorIs(t, err, ErrChallengeExpired, "challenge is single use")

	challenge, err = svc.Challenge(ctx, "bob")
	require.NoError(t, err)
	_, err = svc.Verify(ctx, "bob", sign("forged"), "")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = svc.Verify(ctx, "bob", sign(challenge), "")
	assert.ErrorIs(t, err, ErrChallengeExpired, "failed attempt consumes the challenge")

	_, err = svc.Challenge(ctx, "nobody")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestChallenge_Expired(t *testing.T) {
	cfg := testConfig()
	svc := NewUserService(newTestDB(t), cfg)
	ctx := context.Background()
	now := time.Now()
	svc.now = func() time.Time { return now }

	pub, priv, err := ed25519.GenerateKey(rand.Reader)
	require.NoError(t, err)
	_, err = svc.Register(ctx, RegisterInput{Username: "carol", PublicKey: base64.StdEncoding.EncodeToString(pub)})
	require.NoError(t, err)

	challenge, err := svc.Challenge(ctx, "carol")
	require.NoError(t, err)
	now = now.Add(time.Duration(cfg.ChallengeTTLSeconds+1) * time.Second)

	sig := base64.StdEncoding.EncodeToString(ed25519.Sign(priv, []byte(challenge)))
	_, err = svc.Verify(ctx, "carol", sig, "")
	assert.ErrorIs(t, err, ErrChallengeExpired)
}

func TestListByRoom(t *testing.T) {
	gdb := newTestDB(t)
	st := store.New(gdb)
	svc := NewMessageService(st)
	ctx := context.Background()

	require.NoError(t, gdb.Create(&models.User{ID: "u1", Username: "alice"}).Error)
	require.NoError(t, st.CreateRoom(ctx, &models.Room{ID: "pub", Name: "lobby", DisplayName: "lobby", Kind: models.RoomPublic, CreatorID: "u1", EncryptionKey: "k"}, "u1"))
	require.NoError(t, st.CreateRoom(ctx, &models.Room{ID: "priv", Name: "secret", DisplayName: "secret", Kind: models.RoomPrivate, CreatorID: "u1", EncryptionKey: "k"}, "u1"))
	for i := 0; i < 5; i++ {
		require.NoError(t, st.SaveMessage(ctx, &models.Message{RoomID: "pub", SenderID: "u1", Ciphertext: "c", Kind: models.MessageText}))
	}

	page, err := svc.ListByRoom(ctx, "u2", "pub", 0, 3)
	require.NoError(t, err)
	require.Len(t, page.Messages, 3)
	assert.Equal(t, "alice", page.Messages[0].SenderName)
	require.NotNil(t, page.NextCursor)
	assert.Equal(t, page.Messages[0].ID, *page.NextCursor)

	rest, err := svc.ListByRoom(ctx, "u2", "pub", *page.NextCursor, 3)
	require.NoError(t, err)
	assert.Len(t, rest.Messages, 2)
	assert.Nil(t, rest.NextCursor)

	_, err = svc.ListByRoom(ctx, "u2", "priv", 0, 0)
	assert.ErrorIs(t, err, ErrForbidden)
	empty, err := svc.ListByRoom(ctx, "u1", "priv", 0, 0)
	require.NoError(t, err)
	assert.NotNil(t, empty.Messages)

	_, err = svc.ListByRoom(ctx, "u1", "missing", 0, 0)
	assert.ErrorIs(t, err, ErrRoomNotFound)

	require.NoError(t, st.SoftDeleteRoom(ctx, "pub"))
	old, err := svc.ListByRoom(ctx, "u1", "pub", 0, 0)
	require.NoError(t, err)
	assert.Len(t, old.Messages, 5, "history of a deleted room stays readable")
	_, err = svc.ListByRoom(ctx, "u2", "pub", 0, 0)
	assert.ErrorIs(t, err, ErrForbidden, "deleted rooms are readable by members only")
}
