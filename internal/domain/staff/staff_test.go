package staff

import (
	"context"
	"testing"
	"time"

	"github.com/go-faster/errors"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testPepper = []byte("test-pepper")

type mockStaffRepo struct {
	byHash   map[string]*Member
	err      error
	lastHash string
}

func (m *mockStaffRepo) FindByPinHash(_ context.Context, hash string) (*Member, error) {
	m.lastHash = hash
	if m.err != nil {
		return nil, m.err
	}
	member, ok := m.byHash[hash]
	if !ok {
		return nil, ErrNotFound
	}
	return member, nil
}

func newStaffRepo(pins map[string]Member) *mockStaffRepo {
	byHash := make(map[string]*Member, len(pins))
	for pin, m := range pins {
		m := m
		m.PinHash = HashPIN(testPepper, pin)
		byHash[m.PinHash] = &m
	}
	return &mockStaffRepo{byHash: byHash}
}

func TestAuthenticator_Authenticate(t *testing.T) {
	repo := newStaffRepo(map[string]Member{
		"1234": {ID: "s1", Name: "Luisa", Role: RoleWaitress},
		"9999": {ID: "s2", Name: "Andrés", Role: RoleManager},
	})
	auth := NewAuthenticator(repo, testPepper)

	tests := []struct {
		name    string
		pin     string
		wantID  string
		wantErr error
	}{
		{name: "known pin", pin: "1234", wantID: "s1"},
		{name: "other known pin", pin: "9999", wantID: "s2"},
		{name: "unknown pin", pin: "0000", wantErr: ErrUnauthorized},
		{name: "empty pin", pin: "", wantErr: ErrUnauthorized},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, err := auth.Authenticate(context.Background(), tt.pin)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				assert.Nil(t, m)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantID, m.ID)
		})
	}
}

func TestAuthenticator_LooksUpByHash(t *testing.T) {
	repo := newStaffRepo(nil)
	auth := NewAuthenticator(repo, testPepper)

	_, _ = auth.Authenticate(context.Background(), "4321")

	assert.Equal(t, HashPIN(testPepper, "4321"), repo.lastHash)
	assert.NotContains(t, repo.lastHash, "4321")
	assert.NotEqual(t, HashPIN([]byte("other"), "4321"), repo.lastHash, "pepper changes the hash")
}

func TestAuthenticator_StoredHashMismatch(t *testing.T) {
	hash := HashPIN(testPepper, "1234")
	repo := &mockStaffRepo{byHash: map[string]*Member{
		hash: {ID: "s1", PinHash: HashPIN(testPepper, "5555")},
	}}

	_, err := NewAuthenticator(repo, testPepper).Authenticate(context.Background(), "1234")
	require.ErrorIs(t, err, ErrUnauthorized)
}

func TestAuthenticator_RepositoryError(t *testing.T) {
	repo := &mockStaffRepo{err: errors.New("connection reset")}

	_, err := NewAuthenticator(repo, testPepper).Authenticate(context.Background(), "1234")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrUnauthorized)
	assert.Contains(t, err.Error(), "lookup staff")
}

func TestTokenIssuer_RoundTrip(t *testing.T) {
	fixedNow := time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer([]byte("secret"), 30*time.Minute, 12*time.Hour)
	issuer.now = func() time.Time { return fixedNow }

	member := &Member{ID: "s1", Name: "Luisa", Role: RoleWaitress}

	token, expires, err := issuer.Issue(member, false)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(30*time.Minute), expires)

	claims, err := issuer.Verify(token)
	require.NoError(t, err)
	assert.Equal(t, "s1", claims.Subject)
	assert.Equal(t, "Luisa", claims.Name)
	assert.Equal(t, RoleWaitress, claims.Role)
	assert.False(t, claims.Remember)

	_, expires, err = issuer.Issue(member, true)
	require.NoError(t, err)
	assert.Equal(t, fixedNow.Add(12*time.Hour), expires)
}

func TestTokenIssuer_Rejects(t *testing.T) {
	fixedNow := time.Date(2026, 3, 14, 22, 0, 0, 0, time.UTC)
	issuer := NewTokenIssuer([]byte("secret"), time.Minute, time.Hour)
	issuer.now = func() time.Time { return fixedNow }

	token, _, err := issuer.Issue(&Member{ID: "s1"}, false)
	require.NoError(t, err)

	t.Run("expired", func(t *testing.T) {
		later := NewTokenIssuer([]byte("secret"), time.Minute, time.Hour)
		later.now = func() time.Time { return fixedNow.Add(2 * time.Minute) }
		_, err := later.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("wrong secret", func(t *testing.T) {
		other := NewTokenIssuer([]byte("other"), time.Minute, time.Hour)
		other.now = issuer.now
		_, err := other.Verify(token)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("unsigned", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, Claims{}).
			SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = issuer.Verify(unsigned)
		require.ErrorIs(t, err, ErrInvalidToken)
	})

	t.Run("garbage", func(t *testing.T) {
		_, err := issuer.Verify("not-a-token")
		require.ErrorIs(t, err, ErrInvalidToken)
	})
}
