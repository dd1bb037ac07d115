package retirement

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewHasherRequiresSalt(t *testing.T) {
	_, err := NewHasher(nil)
	assert.ErrorIs(t, err, ErrNoSalts)
}

func TestRetiredIdentifiersAreDeterministic(t *testing.T) {
	h, err := NewHasher([]string{"old-salt", "new-salt"})
	require.NoError(t, err)

	u1 := h.RetiredUsername("Alice")
	u2 := h.RetiredUsername("alice")
	assert.Equal(t, u1, u2, "derivation is case-insensitive")
	assert.True(t, strings.HasPrefix(u1, UsernamePrefix))
	assert.Len(t, u1, len(UsernamePrefix)+64)

	email := h.RetiredEmail("alice@example.com")
	assert.True(t, IsRetiredEmail(email))
	assert.Equal(t, email, h.RetiredEmail("ALICE@example.com"))
	assert.False(t, IsRetiredEmail("alice@example.com"))
}

func TestRetiredUsernameUsesLatestSalt(t *testing.T) {
	h, err := NewHasher([]string{"old-salt", "new-salt"})
	require.NoError(t, err)

	all := h.AllRetiredUsernames("alice")
	require.Len(t, all, 2)
	assert.Equal(t, all[1], h.RetiredUsername("alice"))
	assert.NotEqual(t, all[0], all[1])
}

func TestLookupCandidates(t *testing.T) {
	h, err := NewHasher([]string{"old-salt", "new-salt"})
	require.NoError(t, err)
	old := h.AllRetiredUsernames("alice")[0]

	candidates, ok := h.LookupCandidates("alice", old)
	require.True(t, ok)
	assert.Equal(t, append([]string{"alice"}, h.AllRetiredUsernames("alice")...), candidates)

	_, ok = h.LookupCandidates("alice", h.RetiredUsername("bob"))
	assert.False(t, ok)

	_, ok = h.LookupCandidates("alice", "")
	assert.False(t, ok)
}
