package proxy_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/benbjohnson/clock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"

	"solana-conn-proxy/internal/channel"
	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/proxy"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/solana/stub"
	"solana-conn-proxy/internal/supervisor"
	"solana-conn-proxy/internal/tokens/tokenstest"
	"solana-conn-proxy/internal/wire"
)

const endpoint = "https://rpc.test"

func addr(b byte) solana.Address {
	var a solana.Address
	a[0] = b
	a[31] = b
	return a
}

type fixture struct {
	rpc  *stub.Transport
	sup  *supervisor.Supervisor
	conn *proxy.Connection
}

// newFixture wires a proxy to an unlocked supervisor through a local channel.
func newFixture(t *testing.T, codec wire.BlobCodec) *fixture {
	t.Helper()
	rpc := stub.NewTransport()
	wallet := tokenstest.NewWallet(addr(1))
	wallet.Put(tokenstest.Token{Key: addr(10), Mint: addr(20), Amount: 18_446_744_073_709_551_615, Decimals: 9, Supply: 1 << 62})
	wallet.Install(rpc)

	sup := supervisor.New(supervisor.Options{
		TransportFactory: func(string) solana.Transport { return rpc },
		Logger:           zaptest.NewLogger(t),
		Clock:            clock.NewMock(),
		Codec:            codec,
	})
	t.Cleanup(func() { sup.Stop() })

	e, err := events.New(events.KeyringUnlocked, events.KeyringUnlockedData{
		ActiveWalletsByChain: map[string]string{},
		ConnectionURL:        endpoint,
	})
	require.NoError(t, err)
	require.NoError(t, sup.HandleEvent(context.Background(), e))

	conn := proxy.New(channel.NewLocal(sup), codec)
	t.Cleanup(func() { conn.Close() })
	return &fixture{rpc: rpc, sup: sup, conn: conn}
}

func TestInvoke_UnsupportedIsNeverSent(t *testing.T) {
	var sent atomic.Int32
	ch := channel.NewLocal(channel.HandlerFunc(func(ctx context.Context, req *wire.Request) *wire.Response {
		sent.Add(1)
		return wire.Reply(req.ID, nil)
	}))
	conn := proxy.New(ch, nil)

	for _, method := range []string{"getVersion", "requestAirdrop", "onLogs", "removeSlotChangeListener"} {
		_, err := conn.Invoke(context.Background(), method)
		var unsupported *solana.UnsupportedError
		require.ErrorAs(t, err, &unsupported, method)
		assert.Equal(t, method, unsupported.Method)
		assert.ErrorIs(t, err, solana.ErrUnsupportedOperation)
	}

	_, err := conn.Invoke(context.Background(), "getEverything")
	assert.ErrorIs(t, err, wire.ErrUnknownMethod)
	assert.Zero(t, sent.Load())

	_, err = conn.Invoke(context.Background(), wire.MethodGetSlot)
	require.NoError(t, err)
	assert.Equal(t, int32(1), sent.Load())
}

func TestConnection_NotConfigured(t *testing.T) {
	sup := supervisor.New(supervisor.Options{Logger: zaptest.NewLogger(t)})
	conn := proxy.New(channel.NewLocal(sup), nil)

	_, err := conn.GetSlot(context.Background(), "")
	assert.ErrorIs(t, err, solana.ErrNoConnection)
}

func TestConnection_ClosedChannel(t *testing.T) {
	f := newFixture(t, nil)
	require.NoError(t, f.conn.Close())

	_, err := f.conn.GetSlot(context.Background(), "")
	assert.ErrorIs(t, err, channel.ErrClosed)
}

func TestConnection_AccountDataRoundTrip(t *testing.T) {
	cases := map[string][]byte{
		"empty":   {},
		"zeros":   make([]byte, 8),
		"max len": make([]byte, wire.MaxTransactionSize),
		"mixed":   {0, 1, 2, 254, 255},
	}
	cases["max len"][0] = 9

	for _, codec := range []wire.BlobCodec{wire.Base58Codec{}, wire.BinaryCodec{}} {
		for name, data := range cases {
			t.Run(codec.Profile()+"/"+name, func(t *testing.T) {
				f := newFixture(t, codec)
				f.rpc.Respond(solana.MethodGetAccountInfo, map[string]any{
					"context": map[string]any{"slot": 7},
					"value":   solana.AccountInfo{Lamports: 42, Owner: addr(9), Data: data, RentEpoch: ^uint64(0)},
				})

				got, err := f.conn.GetAccountInfo(context.Background(), addr(3), "")
				require.NoError(t, err)
				require.NotNil(t, got)
				assert.Equal(t, uint64(42), got.Lamports)
				assert.Equal(t, addr(9), got.Owner)
				assert.Equal(t, ^uint64(0), got.RentEpoch)
				assert.Equal(t, len(data), len(got.Data))
				if len(data) > 0 {
					assert.Equal(t, data, got.Data)
				}
			})
		}
	}
}

func TestConnection_MissingAccount(t *testing.T) {
	f := newFixture(t, nil)
	f.rpc.Respond(solana.MethodGetAccountInfo, map[string]any{"context": map[string]any{"slot": 7}, "value": nil})

	got, err := f.conn.GetAccountInfo(context.Background(), addr(3), solana.CommitmentConfirmed)
	require.NoError(t, err)
	assert.Nil(t, got)

	res, err := f.conn.GetAccountInfoAndContext(context.Background(), addr(4), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(7), res.Context.Slot)
	assert.Nil(t, res.Value)
}

func TestConnection_SendRawTransaction(t *testing.T) {
	for _, codec := range []wire.BlobCodec{wire.Base58Codec{}, wire.BinaryCodec{}} {
		t.Run(codec.Profile(), func(t *testing.T) {
			f := newFixture(t, codec)
			var sent string
			f.rpc.Handle(solana.MethodSendTransaction, func(params []any) (any, error) {
				sent = params[0].(string)
				return "sig-1", nil
			})

			sig, err := f.conn.SendRawTransaction(context.Background(), []byte{0, 1, 2, 3}, nil)
			require.NoError(t, err)
			assert.Equal(t, "sig-1", sig)
			assert.Equal(t, "AAECAw==", sent)
		})
	}
}

func TestConnection_TokenAggregateKeepsLargeAmounts(t *testing.T) {
	f := newFixture(t, nil)

	agg, err := f.conn.CustomSplTokenAccounts(context.Background(), addr(1))
	require.NoError(t, err)
	require.Len(t, agg.Fungible.Tokens, 1)
	tok := agg.Fungible.Tokens[0]
	assert.Equal(t, addr(10), tok.Key)
	assert.Equal(t, "18446744073709551615", tok.Amount.String())
	assert.Equal(t, addr(20), tok.Mint)
}

func TestConnection_ScalarsAndErrors(t *testing.T) {
	f := newFixture(t, nil)
	ctx := context.Background()
	f.rpc.Respond(solana.MethodGetSlot, 321)
	f.rpc.Respond(solana.MethodGetBalance, map[string]any{"context": map[string]any{"slot": 1}, "value": 0})
	f.rpc.Respond(solana.MethodGetBlockTime, nil)
	f.rpc.Fail(solana.MethodGetMinimumBalanceForRentExemption, &solana.RPCError{Code: -32602, Message: "bad size"})

	slot, err := f.conn.GetSlot(ctx, solana.CommitmentFinalized)
	require.NoError(t, err)
	assert.Equal(t, uint64(321), slot)

	bal, err := f.conn.GetBalance(ctx, addr(2), "")
	require.NoError(t, err)
	assert.Zero(t, bal)

	bt, err := f.conn.GetBlockTime(ctx, 5)
	require.NoError(t, err)
	assert.Nil(t, bt)

	_, err = f.conn.GetMinimumBalanceForRentExemption(ctx, 10, "")
	assert.ErrorIs(t, err, solana.ErrRPC)

	_, err = f.conn.GetSlot(ctx, "eventually")
	assert.ErrorIs(t, err, wire.ErrInvalidParams)
}

func TestConnection_OverWebSocket(t *testing.T) {
	f := newFixture(t, wire.BinaryCodec{})
	f.rpc.Respond(solana.MethodGetSlot, 99)

	srv := channel.NewServer(f.sup, channel.ServerOptions{Logger: zaptest.NewLogger(t)})
	ts := httptest.NewServer(srv)
	defer ts.Close()
	defer srv.Close()

	client, err := channel.NewWSClient(context.Background(), "ws"+strings.TrimPrefix(ts.URL, "http"), nil)
	require.NoError(t, err)
	conn := proxy.New(client, wire.BinaryCodec{})
	defer conn.Close()

	slot, err := conn.GetSlot(context.Background(), "")
	require.NoError(t, err)
	assert.Equal(t, uint64(99), slot)

	_, err = conn.Invoke(context.Background(), "getSupply")
	assert.ErrorIs(t, err, solana.ErrUnsupportedOperation)
}
