package staff

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"

	"github.com/go-faster/errors"
)

// Role is the job a staff member signs in as.
type Role string

const (
	RoleWaitress  Role = "waitress"
	RoleBartender Role = "bartender"
	RoleManager   Role = "manager"
)

var (
	// ErrNotFound is returned by a Repository when no active member has the
	// given PIN hash.
	ErrNotFound = errors.New("staff member not found")
	// ErrUnauthorized is returned when a PIN does not identify a member.
	ErrUnauthorized = errors.New("unauthorized")
)

// Member is a staff member allowed to operate a terminal.
type Member struct {
	ID      string
	Name    string
	Role    Role
	PinHash string
}

// Repository looks up active staff members by the HMAC of their PIN.
type Repository interface {
	FindByPinHash(ctx context.Context, hash string) (*Member, error)
}

// HashPIN returns the hex HMAC-SHA256 of pin keyed with pepper.
func HashPIN(pepper []byte, pin string) string {
	return hex.EncodeToString(mac(pepper, pin))
}

func mac(pepper []byte, pin string) []byte {
	h := hmac.New(sha256.New, pepper)
	h.Write([]byte(pin))
	return h.Sum(nil)
}

// Authenticator resolves a PIN to a staff member.
type Authenticator struct {
	members Repository
	pepper  []byte
}

// NewAuthenticator creates an Authenticator with the given member directory
// and HMAC pepper.
func NewAuthenticator(members Repository, pepper []byte) *Authenticator {
	return &Authenticator{
		members: members,
		pepper:  pepper,
	}
}

// Authenticate hashes pin, looks the hash up and compares the stored hash in
// constant time.
func (a *Authenticator) Authenticate(ctx context.Context, pin string) (*Member, error) {
	if pin == "" {
		return nil, ErrUnauthorized
	}
	sum := mac(a.pepper, pin)

	m, err := a.members.FindByPinHash(ctx, hex.EncodeToString(sum))
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrUnauthorized
		}
		return nil, errors.Wrap(err, "lookup staff")
	}

	stored, err := hex.DecodeString(m.PinHash)
	if err != nil {
		return nil, ErrUnauthorized
	}
	if subtle.ConstantTimeCompare(sum, stored) != 1 {
		return nil, ErrUnauthorized
	}
	return m, nil
}
