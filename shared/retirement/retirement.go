// Package retirement derives the anonymised identifiers written over a
// retired account. The derivation is deterministic so operators holding the
// salts can map an original username or email to its retired form.
package retirement

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"
)

const (
	UsernamePrefix = "retired__user_"
	EmailDomain    = "retired.invalid"
)

// ErrNoSalts is returned by NewHasher when no salt is configured.
var ErrNoSalts = errors.New("at least one retirement salt is required")

// Hasher derives retired identifiers. Salts are ordered oldest first; new
// identifiers always use the last one, lookups accept any of them.
type Hasher struct {
	salts []string
}

func NewHasher(salts []string) (*Hasher, error) {
	if len(salts) == 0 {
		return nil, ErrNoSalts
	}
	cp := make([]string, len(salts))
	copy(cp, salts)
	return &Hasher{salts: cp}, nil
}

func hash(value, salt string) string {
	sum := sha256.Sum256([]byte(salt + strings.ToLower(value)))
	return hex.EncodeToString(sum[:])
}

func (h *Hasher) currentSalt() string {
	return h.salts[len(h.salts)-1]
}

// RetiredUsername returns the retired form of username under the current salt.
func (h *Hasher) RetiredUsername(username string) string {
	return UsernamePrefix + hash(username, h.currentSalt())
}

// RetiredEmail returns the retired placeholder for email under the current salt.
func (h *Hasher) RetiredEmail(email string) string {
	return UsernamePrefix + hash(email, h.currentSalt()) + "@" + EmailDomain
}

// AllRetiredUsernames returns the retired form of username under every salt.
func (h *Hasher) AllRetiredUsernames(username string) []string {
	out := make([]string, 0, len(h.salts))
	for _, salt := range h.salts {
		out = append(out, UsernamePrefix+hash(username, salt))
	}
	return out
}

// LookupCandidates returns the usernames an account may currently be stored
// under, provided retiredUsername really is a retired form of username. ok is
// false when the pairing does not verify.
func (h *Hasher) LookupCandidates(username, retiredUsername string) (candidates []string, ok bool) {
	retired := h.AllRetiredUsernames(username)
	for _, r := range retired {
		if r == retiredUsername {
			return append([]string{username}, retired...), true
		}
	}
	return nil, false
}

// IsRetiredEmail reports whether email already carries the retired placeholder.
func IsRetiredEmail(email string) bool {
	return strings.HasPrefix(email, UsernamePrefix) && strings.HasSuffix(email, "@"+EmailDomain)
}
