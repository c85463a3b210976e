package main

import (
	"bytes"
	"context"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solana-conn-proxy/internal/channel"
	"solana-conn-proxy/internal/wire"
)

func startChannel(t *testing.T) string {
	t.Helper()
	h := channel.HandlerFunc(func(_ context.Context, req *wire.Request) *wire.Response {
		switch req.Method {
		case wire.MethodGetSlot:
			return wire.Reply(req.ID, 1234)
		case wire.MethodGetBlockTime:
			var slot uint64
			if err := req.DecodeParams(&slot); err != nil {
				return wire.Fail(req.ID, err)
			}
			return wire.Reply(req.ID, int64(slot)*2)
		}
		return wire.Fail(req.ID, wire.ErrUnknownMethod)
	})
	srv := channel.NewServer(h, channel.ServerOptions{Logger: zaptest.NewLogger(t)})
	ts := httptest.NewServer(srv)
	t.Cleanup(func() {
		srv.Close()
		ts.Close()
	})
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCmd()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestCommands(t *testing.T) {
	url := startChannel(t)

	out, err := execute(t, "slot", "--endpoint", url)
	require.NoError(t, err)
	assert.Equal(t, "1234\n", out)

	out, err = execute(t, "block-time", "21", "--endpoint", url)
	require.NoError(t, err)
	assert.Equal(t, "42\n", out)

	out, err = execute(t, "call", "getSlot", `"finalized"`, "--endpoint", url)
	require.NoError(t, err)
	assert.Equal(t, "1234\n", out)
}

func TestCommands_Errors(t *testing.T) {
	url := startChannel(t)

	_, err := execute(t, "call", "getVersion", "--endpoint", url)
	assert.ErrorContains(t, err, "getVersion")

	_, err = execute(t, "call", "getSlot", "{bad", "--endpoint", url)
	assert.ErrorContains(t, err, "argument 1")

	_, err = execute(t, "balance", "not-an-address", "--endpoint", url)
	assert.Error(t, err)

	_, err = execute(t, "block-time", "soon", "--endpoint", url)
	assert.ErrorContains(t, err, "invalid slot")

	_, err = execute(t, "slot", "--endpoint", url, "--profile", "hex")
	assert.Error(t, err)
}
