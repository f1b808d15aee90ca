// ABOUTME: Tests for CommandQueue ordering and the single in-flight rule.
// ABOUTME: Drives the queue directly with a recording transmit function.

package agent

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/2389/rcon-gateway/internal/rcon"
)

type recorder struct {
	sent []string
	err  error
}

func (r *recorder) transmit(cmd string) error {
	r.sent = append(r.sent, cmd)
	return r.err
}

func resolved(t *testing.T, pc *PendingCommand) (string, error) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	return pc.Wait(ctx)
}

func TestCommandQueue_BuffersUntilAuthenticated(t *testing.T) {
	q := NewCommandQueue()
	rec := &recorder{}

	a, b := newPendingCommand("a"), newPendingCommand("b")
	require.NoError(t, q.Enqueue(a))
	require.NoError(t, q.Enqueue(b))
	assert.Empty(t, rec.sent)
	assert.False(t, q.InFlight())

	require.NoError(t, q.OnAuthenticated(rec.transmit))
	assert.Equal(t, []string{"a"}, rec.sent, "only the head is transmitted")
	assert.True(t, q.InFlight())
}

func TestCommandQueue_ResponsesResolveInOrder(t *testing.T) {
	q := NewCommandQueue()
	rec := &recorder{}
	require.NoError(t, q.OnAuthenticated(rec.transmit))

	cmds := []*PendingCommand{newPendingCommand("1"), newPendingCommand("2"), newPendingCommand("3")}
	for _, pc := range cmds {
		require.NoError(t, q.Enqueue(pc))
	}
	assert.Equal(t, []string{"1"}, rec.sent)

	require.NoError(t, q.OnResponse("r1"))
	assert.Equal(t, []string{"1", "2"}, rec.sent)
	require.NoError(t, q.OnResponse("r2"))
	require.NoError(t, q.OnResponse("r3"))
	assert.Equal(t, []string{"1", "2", "3"}, rec.sent)
	assert.Zero(t, q.Len())
	assert.False(t, q.InFlight())

	for i, pc := range cmds {
		resp, err := resolved(t, pc)
		require.NoError(t, err)
		assert.Equal(t, "r"+pc.Command, resp, "command %d", i)
	}
}

func TestCommandQueue_UnexpectedResponse(t *testing.T) {
	q := NewCommandQueue()
	assert.ErrorIs(t, q.OnResponse("stray"), ErrUnexpectedResponse)

	require.NoError(t, q.OnAuthenticated((&recorder{}).transmit))
	assert.ErrorIs(t, q.OnResponse("stray"), ErrUnexpectedResponse)
}

func TestCommandQueue_ConnectionLostFailsEverything(t *testing.T) {
	q := NewCommandQueue()
	rec := &recorder{}
	require.NoError(t, q.OnAuthenticated(rec.transmit))

	head, tail := newPendingCommand("head"), newPendingCommand("tail")
	require.NoError(t, q.Enqueue(head))
	require.NoError(t, q.Enqueue(tail))

	cause := errors.New("reset by peer")
	q.OnConnectionLost(cause)

	for _, pc := range []*PendingCommand{head, tail} {
		_, err := resolved(t, pc)
		assert.ErrorIs(t, err, cause)
	}
	assert.Zero(t, q.Len())

	// Not ready again until the next authentication.
	later := newPendingCommand("later")
	require.NoError(t, q.Enqueue(later))
	assert.Equal(t, []string{"head"}, rec.sent)

	require.NoError(t, q.OnAuthenticated(rec.transmit))
	assert.Equal(t, []string{"head", "later"}, rec.sent)
}

func TestCommandQueue_TransmitErrorCountsAsInFlight(t *testing.T) {
	q := NewCommandQueue()
	rec := &recorder{err: errors.New("broken pipe")}
	require.NoError(t, q.OnAuthenticated(rec.transmit))

	pc := newPendingCommand("x")
	assert.Error(t, q.Enqueue(pc))
	assert.True(t, q.InFlight())

	q.OnConnectionLost(rec.err)
	_, err := resolved(t, pc)
	assert.ErrorIs(t, err, rec.err)
	assert.Len(t, rec.sent, 1)
}

func TestCommandQueue_RefusedCommandFailsAlone(t *testing.T) {
	q := NewCommandQueue()
	var sent []string
	transmit := func(cmd string) error {
		sent = append(sent, cmd)
		if cmd == "huge" {
			return fmt.Errorf("%w: test", rcon.ErrCommandTooLong)
		}
		return nil
	}

	huge := newPendingCommand("huge")
	next := newPendingCommand("next")
	require.NoError(t, q.Enqueue(huge))
	require.NoError(t, q.Enqueue(next))

	require.NoError(t, q.OnAuthenticated(transmit))
	assert.Equal(t, []string{"huge", "next"}, sent)

	_, err := resolved(t, huge)
	assert.ErrorIs(t, err, rcon.ErrCommandTooLong)
	assert.True(t, q.InFlight())
	assert.Equal(t, 1, q.Len())

	require.NoError(t, q.OnResponse("done"))
	resp, err := resolved(t, next)
	require.NoError(t, err)
	assert.Equal(t, "done", resp)
}

func TestPendingCommand_ResolvesOnce(t *testing.T) {
	pc := newPendingCommand("status")
	assert.NotEmpty(t, pc.ID)

	assert.True(t, pc.resolve("first", nil))
	assert.False(t, pc.resolve("second", errors.New("late")))

	resp, err := resolved(t, pc)
	require.NoError(t, err)
	assert.Equal(t, "first", resp)
}

func TestPendingCommand_WaitHonorsContext(t *testing.T) {
	pc := newPendingCommand("status")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err := pc.Wait(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)

	// A late result is accepted and simply not observed by the caller.
	assert.True(t, pc.resolve("late", nil))
}
