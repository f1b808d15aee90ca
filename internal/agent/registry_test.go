// ABOUTME: Tests for the agent registry.
// ABOUTME: Checks ordering, lookup, duplicate detection, and transition streaming.

package agent

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRegistry_ListKeepsConfigOrder(t *testing.T) {
	ids := []ServerIdentity{
		{Hostname: "c", Name: "Charlie", IP: "10.0.0.3", Port: 27015},
		{Hostname: "a", Name: "Alpha", IP: "10.0.0.1", Port: 27015},
		{Hostname: "b", Name: "Bravo", IP: "10.0.0.1", Port: 27016},
	}
	reg, err := NewRegistry(ids, Options{Dial: newFakeServer().dial})
	require.NoError(t, err)

	list := reg.List()
	require.Len(t, list, 3)
	for i, info := range list {
		assert.Equal(t, ids[i].Name, info.Name)
		assert.Equal(t, ids[i].Port, info.Port)
		assert.Equal(t, StateDisconnected, info.State)
	}
	assert.Equal(t, 3, reg.Len())
}

func TestRegistry_Find(t *testing.T) {
	ids := identities(2)
	reg, err := NewRegistry(ids, Options{Dial: newFakeServer().dial})
	require.NoError(t, err)

	a, err := reg.Find("10.0.0.2", 27015)
	require.NoError(t, err)
	assert.Equal(t, "server 1", a.Identity().Name)

	a, err = reg.FindAddress("10.0.0.1:27015")
	require.NoError(t, err)
	assert.Equal(t, "server 0", a.Identity().Name)

	_, err = reg.Find("10.0.0.1", 27016)
	assert.ErrorIs(t, err, ErrServerNotFound)
}

func TestRegistry_DuplicateAddress(t *testing.T) {
	ids := []ServerIdentity{
		{Name: "one", IP: "10.0.0.1", Port: 27015},
		{Name: "two", IP: "10.0.0.1", Port: 27015},
	}
	_, err := NewRegistry(ids, Options{})
	assert.ErrorIs(t, err, ErrDuplicateServer)
}

func TestRegistry_SubscribeAndAuthenticatedCount(t *testing.T) {
	ids := identities(2)
	fs := newFakeServer()
	reg, err := NewRegistry(ids, Options{Dial: fs.dial})
	require.NoError(t, err)

	subCtx, subCancel := context.WithCancel(context.Background())
	defer subCancel()
	events := reg.Subscribe(subCtx)

	ctx, cancel := context.WithCancel(context.Background())
	reg.Start(ctx)

	require.Eventually(t, func() bool { return reg.AuthenticatedCount() == 2 }, 2*time.Second, 5*time.Millisecond)

	authed := map[string]bool{}
	timeout := time.After(2 * time.Second)
	for len(authed) < 2 {
		select {
		case tr := <-events:
			if tr.To == StateAuthenticated {
				authed[tr.Address] = true
			}
		case <-timeout:
			t.Fatal("missing authenticated transitions")
		}
	}

	cancel()
	reg.Wait()
	assert.Zero(t, reg.AuthenticatedCount())

	// Wait closes the stream once every agent has stopped.
	for range events {
	}
}

func TestRegistry_SubscribeAddress(t *testing.T) {
	reg, err := NewRegistry(identities(2), Options{Dial: newFakeServer().dial})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	_, err = reg.SubscribeAddress(ctx, "10.0.0.9:27015")
	assert.ErrorIs(t, err, ErrServerNotFound)

	one, err := reg.SubscribeAddress(ctx, "10.0.0.2:27015")
	require.NoError(t, err)

	reg.Start(ctx)
	defer func() {
		cancel()
		reg.Wait()
	}()

	deadline := time.After(2 * time.Second)
	for {
		select {
		case tr := <-one:
			require.Equal(t, "10.0.0.2:27015", tr.Address)
			if tr.To == StateAuthenticated {
				return
			}
		case <-deadline:
			t.Fatal("no authenticated transition for the filtered server")
		}
	}
}
