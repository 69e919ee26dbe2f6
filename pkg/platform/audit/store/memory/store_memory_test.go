package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	id "crowdfund/pkg/domain"
	audit "crowdfund/pkg/platform/audit"
	"crowdfund/pkg/platform/tx"
)

func TestInMemoryStore(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	alice := id.Identity("0xalice")
	bob := id.Identity("0xbob")

	require.NoError(t, store.Append(ctx, audit.Event{Identity: alice, Action: string(audit.EventRequestSubmitted)}))
	require.NoError(t, store.Append(ctx, audit.Event{Identity: bob, Action: string(audit.EventRequestSubmitted)}))
	require.NoError(t, store.Append(ctx, audit.Event{Identity: alice, Action: string(audit.EventRequestApproved)}))

	t.Run("lists by identity oldest first", func(t *testing.T) {
		events, err := store.ListByIdentity(ctx, alice)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, string(audit.EventRequestSubmitted), events[0].Action)
		assert.Equal(t, string(audit.EventRequestApproved), events[1].Action)
	})

	t.Run("lists recent newest first", func(t *testing.T) {
		events, err := store.ListRecent(ctx, 2)
		require.NoError(t, err)
		require.Len(t, events, 2)
		assert.Equal(t, alice, events[0].Identity)
		assert.Equal(t, bob, events[1].Identity)
	})

	t.Run("non-positive limit returns everything", func(t *testing.T) {
		events, err := store.ListRecent(ctx, 0)
		require.NoError(t, err)
		assert.Len(t, events, 3)
	})

}

func TestInMemoryStore_AppendFollowsTransaction(t *testing.T) {
	ctx := context.Background()
	store := NewInMemoryStore()
	runner := tx.NewSharded(time.Second)
	alice := id.Identity("0xalice")

	err := runner.RunInTx(ctx, "verification:0xalice", func(ctx context.Context) error {
		require.NoError(t, store.Append(ctx, audit.Event{Identity: alice, Action: string(audit.EventRequestSubmitted)}))
		return errors.New("store write failed")
	})
	require.Error(t, err)
	events, err := store.ListRecent(ctx, 0)
	require.NoError(t, err)
	assert.Empty(t, events, "events of a failed transaction are discarded")

	err = runner.RunInTx(ctx, "verification:0xalice", func(ctx context.Context) error {
		return store.Append(ctx, audit.Event{Identity: alice, Action: string(audit.EventRequestSubmitted)})
	})
	require.NoError(t, err)
	events, err = store.ListByIdentity(ctx, alice)
	require.NoError(t, err)
	assert.Len(t, events, 1)
}
