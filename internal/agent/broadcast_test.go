// ABOUTME: Tests for Coordinator broadcast and targeted send.
// ABOUTME: Covers completeness, partial failure, fire-and-forget timing, and timeouts.

package agent

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rcon-gateway/internal/rcon"
)

// fleet builds a registry whose agents dial the fake server for their address.
func fleet(t *testing.T, servers map[string]*fakeServer, ids ...ServerIdentity) (*Registry, *Coordinator) {
	t.Helper()
	reg, err := NewRegistry(ids, Options{
		Policy: FixedDelay{Delay: 10 * time.Millisecond},
		Dial: func(id ServerIdentity) Connection {
			return servers[id.Address()].dial(id)
		},
	})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	reg.Start(ctx)
	t.Cleanup(func() {
		cancel()
		reg.Wait()
	})
	return reg, NewCoordinator(reg, nil)
}

func identities(n int) []ServerIdentity {
	ids := make([]ServerIdentity, n)
	for i := range ids {
		ids[i] = ServerIdentity{
			Hostname: fmt.Sprintf("host-%d", i),
			Name:     fmt.Sprintf("server %d", i),
			IP:       fmt.Sprintf("10.0.0.%d", i+1),
			Port:     27015,
		}
	}
	return ids
}

func TestBroadcast_AllSucceed(t *testing.T) {
	ids := identities(5)
	servers := make(map[string]*fakeServer)
	for _, id := range ids {
		servers[id.Address()] = newFakeServer()
	}
	_, coord := fleet(t, servers, ids...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := coord.Broadcast(ctx, BroadcastRequest{Command: "status", Wait: true})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Equal(t, 5, res.Sent)
	require.Len(t, res.Responses, 5)
	for _, id := range ids {
		out, ok := res.Responses[id.Address()]
		require.True(t, ok, "missing %s", id.Address())
		require.NoError(t, out.Err)
		assert.Equal(t, "ok:status", out.Response)
	}
}

func TestBroadcast_OneConnectionDrops(t *testing.T) {
	a := ServerIdentity{Name: "A", IP: "10.0.0.1", Port: 27015}
	b := ServerIdentity{Name: "B", IP: "10.0.0.2", Port: 27015}

	okServer := newFakeServer()
	okServer.setReply(func(string) fakeReply { return fakeReply{body: "ok"} })
	dropServer := newFakeServer()
	dropServer.setReply(func(string) fakeReply { return fakeReply{drop: true} })

	_, coord := fleet(t, map[string]*fakeServer{
		a.Address(): okServer,
		b.Address(): dropServer,
	}, a, b)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := coord.Broadcast(ctx, BroadcastRequest{Command: "say hi", Wait: true})
	require.NoError(t, err)
	require.Len(t, res.Responses, 2)

	assert.Equal(t, Outcome{Response: "ok"}, res.Responses["10.0.0.1:27015"])

	failed := res.Responses["10.0.0.2:27015"]
	assert.Empty(t, failed.Response)
	var cmdErr *CommandError
	require.ErrorAs(t, failed.Err, &cmdErr)
	assert.Equal(t, "10.0.0.2:27015", cmdErr.Address)
	assert.ErrorIs(t, failed.Err, rcon.ErrClosed)
}

func TestBroadcast_UnreachableAgentReportsError(t *testing.T) {
	ids := identities(3)
	servers := make(map[string]*fakeServer)
	for _, id := range ids {
		servers[id.Address()] = newFakeServer()
	}
	servers[ids[1].Address()].setRefuse(true)
	_, coord := fleet(t, servers, ids...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	res, err := coord.Broadcast(ctx, BroadcastRequest{Command: "status", Wait: true})
	require.NoError(t, err)
	require.Len(t, res.Responses, 3)

	assert.ErrorIs(t, res.Responses[ids[1].Address()].Err, errRefused)
	assert.Equal(t, "ok:status", res.Responses[ids[0].Address()].Response)
	assert.Equal(t, "ok:status", res.Responses[ids[2].Address()].Response)
}

func TestBroadcast_FireAndForgetReturnsBeforeDelay(t *testing.T) {
	ids := identities(3)
	servers := make(map[string]*fakeServer)
	for _, id := range ids {
		servers[id.Address()] = newFakeServer()
	}
	_, coord := fleet(t, servers, ids...)

	const delay = 200 * time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())

	start := time.Now()
	res, err := coord.Broadcast(ctx, BroadcastRequest{Command: "say later", Delay: delay})
	elapsed := time.Since(start)
	// Cancelling the caller must not cancel scheduled work.
	cancel()

	require.NoError(t, err)
	assert.Less(t, elapsed, delay)
	assert.Equal(t, 3, res.Sent)
	assert.False(t, res.Complete)
	assert.Empty(t, res.Responses)
	for _, fs := range servers {
		assert.Empty(t, fs.sentCommands())
	}

	require.Eventually(t, func() bool {
		for _, fs := range servers {
			if len(fs.sentCommands()) != 1 {
				return false
			}
		}
		return true
	}, 2*time.Second, 10*time.Millisecond)
}

func TestBroadcast_DelayDoesNotSerializeAgents(t *testing.T) {
	ids := identities(4)
	servers := make(map[string]*fakeServer)
	for _, id := range ids {
		servers[id.Address()] = newFakeServer()
	}
	_, coord := fleet(t, servers, ids...)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	const delay = 100 * time.Millisecond
	start := time.Now()
	res, err := coord.Broadcast(ctx, BroadcastRequest{Command: "status", Delay: delay, Wait: true})
	require.NoError(t, err)
	assert.Len(t, res.Responses, 4)

	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, delay)
	assert.Less(t, elapsed, 3*delay, "per-agent delays must run concurrently")
}

func TestBroadcast_ContextEndsWithPartialResult(t *testing.T) {
	ids := identities(2)
	servers := map[string]*fakeServer{
		ids[0].Address(): newFakeServer(),
		ids[1].Address(): newFakeServer(),
	}
	servers[ids[1].Address()].setReply(func(string) fakeReply { return fakeReply{hang: true} })
	_, coord := fleet(t, servers, ids...)

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	res, err := coord.Broadcast(ctx, BroadcastRequest{Command: "status", Wait: true})
	require.ErrorIs(t, err, context.DeadlineExceeded)
	require.NotNil(t, res)
	assert.False(t, res.Complete)
	require.Len(t, res.Responses, 2)
	assert.Equal(t, "ok:status", res.Responses[ids[0].Address()].Response)
	assert.ErrorIs(t, res.Responses[ids[1].Address()].Err, context.DeadlineExceeded)
}

func TestBroadcast_NoAgents(t *testing.T) {
	_, coord := fleet(t, nil)

	res, err := coord.Broadcast(context.Background(), BroadcastRequest{Command: "status", Wait: true})
	require.NoError(t, err)
	assert.True(t, res.Complete)
	assert.Zero(t, res.Sent)
	assert.Empty(t, res.Responses)
}

func TestBroadcast_EmptyCommand(t *testing.T) {
	fs := newFakeServer()
	id := identities(1)[0]
	_, coord := fleet(t, map[string]*fakeServer{id.Address(): fs}, id)

	_, err := coord.Broadcast(context.Background(), BroadcastRequest{Wait: true})
	assert.ErrorIs(t, err, ErrEmptyCommand)
	assert.Empty(t, fs.sentCommands())
}

func TestBroadcast_CommandTooLong(t *testing.T) {
	fs := newFakeServer()
	id := identities(1)[0]
	_, coord := fleet(t, map[string]*fakeServer{id.Address(): fs}, id)

	big := strings.Repeat("x", rcon.MaxCommandLength+1)
	_, err := coord.Broadcast(context.Background(), BroadcastRequest{Command: big, Wait: true})
	assert.ErrorIs(t, err, ErrCommandTooLong)

	_, err = coord.Send(context.Background(), id.IP, id.Port, SendRequest{Command: big})
	assert.ErrorIs(t, err, ErrCommandTooLong)
	assert.Empty(t, fs.sentCommands())
}

func TestSend(t *testing.T) {
	id := identities(1)[0]
	fs := newFakeServer()
	_, coord := fleet(t, map[string]*fakeServer{id.Address(): fs}, id)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	t.Run("waits for response", func(t *testing.T) {
		resp, err := coord.Send(ctx, id.IP, id.Port, SendRequest{Command: "status", Wait: true})
		require.NoError(t, err)
		assert.Equal(t, "ok:status", resp)
	})

	t.Run("fire and forget", func(t *testing.T) {
		resp, err := coord.Send(ctx, id.IP, id.Port, SendRequest{Command: "say bg", Delay: 20 * time.Millisecond})
		require.NoError(t, err)
		assert.Empty(t, resp)
		require.Eventually(t, func() bool {
			sent := fs.sentCommands()
			return len(sent) > 0 && sent[len(sent)-1] == "say bg"
		}, time.Second, 5*time.Millisecond)
	})

	t.Run("unknown server", func(t *testing.T) {
		_, err := coord.Send(ctx, "192.168.1.1", 27015, SendRequest{Command: "status", Wait: true})
		assert.ErrorIs(t, err, ErrServerNotFound)
	})

	t.Run("empty command", func(t *testing.T) {
		_, err := coord.Send(ctx, id.IP, id.Port, SendRequest{Wait: true})
		assert.ErrorIs(t, err, ErrEmptyCommand)
	})
}
