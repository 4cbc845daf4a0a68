package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAccounts_Resolve(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			accounts := NewAccounts(b)

			first, err := accounts.Resolve(ctx, "12345")
			require.NoError(t, err)
			assert.Equal(t, "1", first)

			again, err := accounts.Resolve(ctx, "12345")
			require.NoError(t, err)
			assert.Equal(t, first, again)

			other, err := accounts.Resolve(ctx, "999")
			require.NoError(t, err)
			assert.Equal(t, "2", other)
		})
	}
}

func TestAccounts_ResolveRejectsBadTokens(t *testing.T) {
	accounts := NewAccounts(NewMemoryBackend(nil))
	for _, token := range []string{"", "abc", "12a", "123456789012345678901"} {
		_, err := accounts.Resolve(context.Background(), token)
		assert.ErrorIs(t, err, ErrBadToken, token)
	}
}

func TestAccounts_ClaimName(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			accounts := NewAccounts(b)

			require.NoError(t, accounts.ClaimName(ctx, "1", "", "ann"))
			assert.ErrorIs(t, accounts.ClaimName(ctx, "2", "", "ann"), ErrNameTaken)

			require.NoError(t, accounts.ClaimName(ctx, "1", "ann", "annie"))
			require.NoError(t, accounts.ClaimName(ctx, "2", "", "ann"), "old name is released")

			user, err := accounts.Load(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, "annie", user.Name)
		})
	}
}

func TestAccounts_RoomMembership(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			accounts := NewAccounts(b)

			set, err := accounts.SetRoom(ctx, "1", "lobby")
			require.NoError(t, err)
			assert.True(t, set)

			set, err = accounts.SetRoom(ctx, "1", "other")
			require.NoError(t, err)
			assert.False(t, set)

			user, err := accounts.Load(ctx, "1")
			require.NoError(t, err)
			assert.Equal(t, "lobby", user.RoomID)

			require.NoError(t, accounts.ClearRoom(ctx, "1"))
			user, err = accounts.Load(ctx, "1")
			require.NoError(t, err)
			assert.Empty(t, user.RoomID)
		})
	}
}

func TestSuggestions(t *testing.T) {
	ctx := context.Background()
	for name, b := range backends(t) {
		t.Run(name, func(t *testing.T) {
			s := NewSuggestions(b)

			added, err := s.Add(ctx, "A sentient toaster.")
			require.NoError(t, err)
			assert.True(t, added)
			added, err = s.Add(ctx, "A sentient toaster.")
			require.NoError(t, err)
			assert.False(t, added)
			_, err = s.Add(ctx, "Why _?")
			require.NoError(t, err)

			n, err := s.Count(ctx)
			require.NoError(t, err)
			assert.Equal(t, int64(2), n)

			list, err := s.List(ctx)
			require.NoError(t, err)
			assert.Equal(t, []string{"A sentient toaster.", "Why _?"}, list)

			require.NoError(t, s.Vacuum(ctx))
			n, err = s.Count(ctx)
			require.NoError(t, err)
			assert.Zero(t, n)
		})
	}
}
