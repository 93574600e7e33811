package connection_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/networkteam/pwire/connection"
	"github.com/networkteam/pwire/protocol"
)

func createOwner(t *testing.T, conn *connection.Connection, guid string) *connection.ChannelOwner {
	t.Helper()
	obj, ok := conn.Object(guid)
	require.True(t, ok, "object %s not registered", guid)
	return obj.Channel()
}

func TestChannelOwner_SendUsesOwnGUID(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Frame", "frame@1", nil)
	syncDispatcher(t, conn)
	frame := createOwner(t, conn, "frame@1")

	d.Handle("title", func(call *protocol.Message) (any, error) {
		assert.Equal(t, "frame@1", call.GUID)
		return map[string]string{"value": "Example"}, nil
	})

	var title string
	require.NoError(t, frame.SendReturning(context.Background(), "title", nil, "value", &title))
	assert.Equal(t, "Example", title)
}

func TestChannelOwner_ExpectEvent(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Frame", "frame@1", nil)
	syncDispatcher(t, conn)
	frame := createOwner(t, conn, "frame@1")

	waiter := frame.ExpectEvent("loadstate")
	d.Event("frame@1", "loadstate", map[string]string{"add": "load"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	params, err := waiter.Wait(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"add":"load"}`, string(params))
}

func TestChannelOwner_ExpectEventFunc(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Frame", "frame@1", nil)
	syncDispatcher(t, conn)
	frame := createOwner(t, conn, "frame@1")

	waiter := frame.ExpectEventFunc("loadstate", func(params json.RawMessage) bool {
		var p struct {
			Add string `json:"add"`
		}
		_ = json.Unmarshal(params, &p)
		return p.Add == "networkidle"
	})
	d.Event("frame@1", "loadstate", map[string]string{"add": "load"})
	d.Event("frame@1", "loadstate", map[string]string{"add": "networkidle"})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	params, err := waiter.Wait(ctx)
	require.NoError(t, err)
	assert.JSONEq(t, `{"add":"networkidle"}`, string(params))
}

func TestChannelOwner_WaitForEventCanceled(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Frame", "frame@1", nil)
	syncDispatcher(t, conn)
	frame := createOwner(t, conn, "frame@1")

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := frame.WaitForEvent(ctx, "never")
	assert.ErrorIs(t, err, context.DeadlineExceeded)
}

func TestChannelOwner_DisposeFailsWaiters(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Frame", "frame@1", nil)
	syncDispatcher(t, conn)
	frame := createOwner(t, conn, "frame@1")

	waiter := frame.ExpectEvent("navigated")
	d.Dispose("frame@1")

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_, err := waiter.Wait(ctx)
	assert.ErrorIs(t, err, connection.ErrObjectDisposed)

	// Calls on a disposed object fail without reaching the driver.
	_, err = frame.Send(context.Background(), "title", nil)
	assert.ErrorIs(t, err, connection.ErrObjectDisposed)

	// Waiting on a disposed object fails immediately.
	_, err = frame.WaitForEvent(ctx, "navigated")
	assert.ErrorIs(t, err, connection.ErrObjectDisposed)
}

func TestChannelOwner_ListenersRunInOrder(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Worker", "worker", nil)
	syncDispatcher(t, conn)
	worker := createOwner(t, conn, "worker")

	received := make(chan int, 10)
	worker.On("console", func(payload any) {
		var p struct {
			N int `json:"n"`
		}
		_ = json.Unmarshal(payload.(json.RawMessage), &p)
		received <- p.N
	})

	for i := 0; i < 5; i++ {
		d.Event("worker", "console", map[string]int{"n": i})
	}

	for i := 0; i < 5; i++ {
		select {
		case n := <-received:
			assert.Equal(t, i, n)
		case <-time.After(2 * time.Second):
			t.Fatal("Timed out waiting for listener")
		}
	}
}

func TestChannelOwner_ListenerMayCallDriver(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Route", "route", nil)
	syncDispatcher(t, conn)
	route := createOwner(t, conn, "route")

	d.Handle("continue", func(call *protocol.Message) (any, error) {
		return nil, nil
	})

	done := make(chan error, 1)
	route.On("route", func(payload any) {
		// A blocking call from a listener must not deadlock the dispatcher.
		_, err := route.Send(context.Background(), "continue", nil)
		done <- err
	})

	d.Event("route", "route", nil)

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("Listener call deadlocked")
	}
}

func TestChannelOwner_OnceAndRemove(t *testing.T) {
	t.Parallel()

	conn, d := newTestConnection(t)
	d.Create("", "Worker", "worker", nil)
	syncDispatcher(t, conn)
	worker := createOwner(t, conn, "worker")

	onceCalls := make(chan struct{}, 5)
	worker.Once("crash", func(payload any) {
		onceCalls <- struct{}{}
	})
	remove := worker.On("crash", func(payload any) {})
	assert.True(t, worker.HasListeners("crash"))

	d.Event("worker", "crash", nil)
	d.Event("worker", "crash", nil)
	syncDispatcher(t, conn)

	remove()
	assert.False(t, worker.HasListeners("crash"))

	select {
	case <-onceCalls:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for once listener")
	}
	assert.Empty(t, onceCalls)
}
