package channel

import (
	"context"
	"errors"
	"fmt"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap/zaptest"

	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/wire"
)

// echo replies with the request's first param, or fails unknown methods.
var echo = HandlerFunc(func(ctx context.Context, req *wire.Request) *wire.Response {
	switch req.Method {
	case "echo":
		var v any
		if err := req.DecodeParams(&v); err != nil {
			return wire.Fail(req.ID, err)
		}
		return wire.Reply(req.ID, v)
	case "block":
		<-ctx.Done()
		return wire.Fail(req.ID, ctx.Err())
	default:
		return wire.Fail(req.ID, &solana.UnsupportedError{Method: req.Method})
	}
})

func startServer(t *testing.T, h Handler, bus events.Bus) (*Server, string) {
	t.Helper()
	srv := NewServer(h, ServerOptions{Bus: bus, Logger: zaptest.NewLogger(t)})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return srv, "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dial(t *testing.T, url string) *WSClient {
	t.Helper()
	client, err := NewWSClient(context.Background(), url, &WSClientConfig{Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	t.Cleanup(func() { client.Close() })
	return client
}

func TestLocal_RoundTrip(t *testing.T) {
	ch := NewLocal(echo)
	req, err := wire.NewRequest("1", "echo", map[string]any{"a": 1})
	require.NoError(t, err)

	resp, err := ch.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Equal(t, "1", resp.ID)
	assert.JSONEq(t, `{"a":1}`, string(resp.Result))

	req, err = wire.NewRequest("2", "getVersion")
	require.NoError(t, err)
	resp, err = ch.Call(context.Background(), req)
	require.NoError(t, err)
	assert.ErrorIs(t, resp.Decode(nil), solana.ErrUnsupportedOperation)

	require.NoError(t, ch.Close())
	require.NoError(t, ch.Close())
	_, err = ch.Call(context.Background(), req)
	assert.ErrorIs(t, err, ErrClosed)
}

func TestWS_RoundTrip(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	srv := NewServer(echo, ServerOptions{Logger: zaptest.NewLogger(t)})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.Close()

	client, err := NewWSClient(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	defer client.Close()

	req, err := wire.NewRequest("", "echo", "hello")
	require.NoError(t, err)
	resp, err := client.Call(context.Background(), req)
	require.NoError(t, err)
	assert.NotEmpty(t, req.ID, "an ID is assigned")
	assert.Equal(t, req.ID, resp.ID)

	var got string
	require.NoError(t, resp.Decode(&got))
	assert.Equal(t, "hello", got)
}

func TestWS_ConcurrentCallsMatchByID(t *testing.T) {
	_, url := startServer(t, echo, nil)
	client := dial(t, url)

	var wg sync.WaitGroup
	errs := make(chan error, 50)
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			req, err := wire.NewRequest("", "echo", i)
			if err != nil {
				errs <- err
				return
			}
			resp, err := client.Call(context.Background(), req)
			if err != nil {
				errs <- err
				return
			}
			var got int
			if err := resp.Decode(&got); err != nil {
				errs <- err
				return
			}
			if got != i {
				errs <- fmt.Errorf("call %d got reply %d", i, got)
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
}

func TestWS_ForwardsNotifications(t *testing.T) {
	bus := events.NewMessageBus(8)
	defer bus.Close()
	_, url := startServer(t, echo, bus)
	client := dial(t, url)

	// The subscription is registered once the server has read a request.
	req, err := wire.NewRequest("", "echo", 1)
	require.NoError(t, err)
	_, err = client.Call(context.Background(), req)
	require.NoError(t, err)

	e, err := events.New(events.TokenAccountsDidUpdate, events.TokenAccountsDidUpdateData{ConnectionURL: "https://rpc", WalletAddress: "w"})
	require.NoError(t, err)
	bus.Publish(events.TopicNotifications, e)

	select {
	case got := <-client.Notifications():
		assert.Equal(t, events.TokenAccountsDidUpdate, got.Name)
		var data events.TokenAccountsDidUpdateData
		require.NoError(t, got.Decode(&data))
		assert.Equal(t, "https://rpc", data.ConnectionURL)
	case <-time.After(time.Second):
		t.Fatal("notification not forwarded")
	}
}

func TestWS_PendingCallFailsWhenServerCloses(t *testing.T) {
	srv, url := startServer(t, echo, nil)
	client := dial(t, url)

	errCh := make(chan error, 1)
	go func() {
		req, _ := wire.NewRequest("", "block")
		_, err := client.Call(context.Background(), req)
		errCh <- err
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, srv.Close())

	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, ErrClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("pending call did not fail")
	}

	req, err := wire.NewRequest("", "echo", 1)
	require.NoError(t, err)
	_, err = client.Call(context.Background(), req)
	assert.ErrorIs(t, err, ErrClosed)

	_, open := <-client.Notifications()
	assert.False(t, open)
}

func TestWS_CallerCancelAbandonsReply(t *testing.T) {
	_, url := startServer(t, echo, nil)
	client := dial(t, url)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	req, err := wire.NewRequest("", "block")
	require.NoError(t, err)
	_, err = client.Call(ctx, req)
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	req, err = wire.NewRequest("", "echo", "still works")
	require.NoError(t, err)
	resp, err := client.Call(context.Background(), req)
	require.NoError(t, err)
	assert.Nil(t, resp.Error)
}

func TestWS_DialFailure(t *testing.T) {
	_, err := NewWSClient(context.Background(), "ws://127.0.0.1:1/channel", nil)
	assert.Error(t, err)
}

func TestWS_UnreadNotificationsDoNotStallReplies(t *testing.T) {
	bus := events.NewMessageBus(8)
	defer bus.Close()
	_, url := startServer(t, echo, bus)

	client, err := NewWSClient(context.Background(), url, &WSClientConfig{NotificationBuffer: 1, Logger: zaptest.NewLogger(t)})
	require.NoError(t, err)
	defer client.Close()

	req, err := wire.NewRequest("", "echo", 1)
	require.NoError(t, err)
	_, err = client.Call(context.Background(), req)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		e, err := events.New(events.TokenAccountsDidUpdate, events.TokenAccountsDidUpdateData{ConnectionURL: "https://rpc", WalletAddress: fmt.Sprint(i)})
		require.NoError(t, err)
		bus.Publish(events.TopicNotifications, e)
	}
	assert.Eventually(t, func() bool { return client.Dropped() == 2 }, 2*time.Second, 10*time.Millisecond)

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	req, err = wire.NewRequest("", "echo", "after")
	require.NoError(t, err)
	resp, err := client.Call(ctx, req)
	require.NoError(t, err)
	var got string
	require.NoError(t, resp.Decode(&got))
	assert.Equal(t, "after", got)

	first := <-client.Notifications()
	var data events.TokenAccountsDidUpdateData
	require.NoError(t, first.Decode(&data))
	assert.Equal(t, "0", data.WalletAddress)
}
