package supervisor_test

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/storage/memory"
	"solana-conn-proxy/internal/supervisor"
	"solana-conn-proxy/internal/tokens"
)

func (h *harness) ticks(task, result string) float64 {
	return testutil.ToFloat64(h.metrics.PollTicks.WithLabelValues(task, result))
}

func (h *harness) tick() {
	h.mock.Add(supervisor.DefaultTokenPollInterval)
}

func (h *harness) waitTicks(task, result string, n float64) {
	h.t.Helper()
	require.Eventually(h.t, func() bool { return h.ticks(task, result) == n }, time.Second, time.Millisecond,
		"waiting for %s %s ticks", task, result)
}

func (h *harness) updates() []events.TokenAccountsDidUpdateData {
	var out []events.TokenAccountsDidUpdateData
	for _, e := range h.notes.all() {
		if e.Name != events.TokenAccountsDidUpdate {
			continue
		}
		var data events.TokenAccountsDidUpdateData
		require.NoError(h.t, e.Decode(&data))
		out = append(out, data)
	}
	return out
}

func withoutPolling(o *supervisor.Options) {
	o.TokenPollInterval = time.Hour
	o.BlockhashPollInterval = time.Hour
}

func TestScenarioA_AggregateServedFromCache(t *testing.T) {
	h := newHarness(t, withoutPolling)
	ctx := context.Background()
	w := addr(1)
	h.unlock(urlOne, &w)
	tr := h.endpoint(urlOne)

	first, err := h.sup.CustomSplTokenAccounts(ctx, w)
	require.NoError(t, err)
	require.Len(t, first.Fungible.Tokens, 1)
	assert.Equal(t, 2, tr.Calls(solana.MethodGetTokenAccountsByOwner), "one call per token program")

	h.mock.Add(14 * time.Second)
	second, err := h.sup.CustomSplTokenAccounts(ctx, w)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 2, tr.Calls(solana.MethodGetTokenAccountsByOwner))

	h.mock.Add(time.Second)
	_, err = h.sup.CustomSplTokenAccounts(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, 4, tr.Calls(solana.MethodGetTokenAccountsByOwner))
}

func TestScenarioB_UnchangedFingerprintIsSilent(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := addr(1)
	h.unlock(urlOne, &w)

	// The foreground fetch seeds the poller.
	_, err := h.sup.CustomSplTokenAccounts(ctx, w)
	require.NoError(t, err)

	h.tick()
	h.waitTicks(supervisor.TaskTokenAccounts, "unchanged", 1)
	assert.Empty(t, h.updates())

	h.wallet.SetAmount(addr(10), 2_000)
	h.tick()
	h.waitTicks(supervisor.TaskTokenAccounts, "changed", 1)
	require.Eventually(t, func() bool { return len(h.updates()) == 1 }, time.Second, time.Millisecond)

	update := h.updates()[0]
	assert.Equal(t, urlOne, update.ConnectionURL)
	assert.Equal(t, w.String(), update.WalletAddress)
	var agg tokens.Aggregate
	require.NoError(t, json.Unmarshal(update.Aggregate, &agg))
	require.Len(t, agg.Fungible.Tokens, 1)
	assert.Equal(t, int64(2_000), agg.Fungible.Tokens[0].Amount.Int64())

	// The poller wrote the aggregate where foreground reads find it.
	calls := h.endpoint(urlOne).Calls(solana.MethodGetTokenAccountsByOwner)
	cached, err := h.sup.CustomSplTokenAccounts(ctx, w)
	require.NoError(t, err)
	assert.Equal(t, int64(2_000), cached.Fungible.Tokens[0].Amount.Int64())
	assert.Equal(t, calls, h.endpoint(urlOne).Calls(solana.MethodGetTokenAccountsByOwner))

	h.tick()
	h.waitTicks(supervisor.TaskTokenAccounts, "unchanged", 2)
	assert.Len(t, h.updates(), 1)
}

func TestScenarioC_URLUpdateRestartsPolling(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := addr(1)
	h.unlock(urlOne, &w)

	h.tick()
	h.waitTicks(supervisor.TaskTokenAccounts, "changed", 1)

	h.apply(events.ConnectionURLUpdated, events.ConnectionURLUpdatedData{ActiveWallet: w.String(), URL: urlTwo})
	assert.Equal(t, supervisor.StateUnlocked, h.sup.State())
	assert.Equal(t, 2, h.sup.ActivePollTasks())
	oldCalls := h.endpoint(urlOne).TotalCalls()

	h.tick()
	h.waitTicks(supervisor.TaskTokenAccounts, "changed", 2)
	require.Eventually(t, func() bool { return len(h.updates()) == 2 }, time.Second, time.Millisecond)
	assert.Equal(t, urlOne, h.updates()[0].ConnectionURL)
	assert.Equal(t, urlTwo, h.updates()[1].ConnectionURL)

	bh, err := h.sup.GetLatestBlockhash(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "hash-"+urlTwo, bh.Blockhash)
	slot, err := h.sup.GetSlot(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, uint64(200), slot)

	assert.Equal(t, oldCalls, h.endpoint(urlOne).TotalCalls(), "nothing reaches the old endpoint")
}

func TestPoller_BlockhashRefreshesCache(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	w := addr(1)
	h.unlock(urlOne, &w)
	tr := h.endpoint(urlOne)

	h.tick()
	h.waitTicks(supervisor.TaskBlockhash, "refreshed", 1)
	assert.Equal(t, 1, tr.Calls(solana.MethodGetLatestBlockhash))

	bh, err := h.sup.GetLatestBlockhash(ctx, "")
	require.NoError(t, err)
	assert.Equal(t, "hash-"+urlOne, bh.Blockhash)
	assert.Equal(t, 1, tr.Calls(solana.MethodGetLatestBlockhash), "served from the refreshed entry")

	h.tick()
	h.waitTicks(supervisor.TaskBlockhash, "refreshed", 2)
	assert.Equal(t, 2, tr.Calls(solana.MethodGetLatestBlockhash), "refresh is unconditional")
}

func TestPoller_SurvivesTickErrors(t *testing.T) {
	h := newHarness(t)
	w := addr(1)
	h.unlock(urlOne, &w)
	tr := h.endpoint(urlOne)

	tr.Fail(solana.MethodGetTokenAccountsByOwner, &solana.NetworkError{Method: solana.MethodGetTokenAccountsByOwner, Err: assert.AnError})
	h.tick()
	h.waitTicks(supervisor.TaskTokenAccounts, "error", 1)
	assert.Equal(t, 2, h.sup.ActivePollTasks())
	assert.Empty(t, h.updates())

	h.wallet.Install(tr)
	h.tick()
	h.waitTicks(supervisor.TaskTokenAccounts, "changed", 1)
}

func TestPoller_PersistedFingerprintSuppressesRestartNotification(t *testing.T) {
	store := memory.NewFingerprintStore()
	withStore := func(o *supervisor.Options) { o.Fingerprints = store }
	w := addr(1)

	first := newHarness(t, withStore)
	first.unlock(urlOne, &w)
	first.tick()
	first.waitTicks(supervisor.TaskTokenAccounts, "changed", 1)
	require.NoError(t, first.sup.Stop())

	saved, err := store.Get(context.Background(), urlOne, w.String())
	require.NoError(t, err)
	assert.Len(t, saved.Value, 64)

	second := newHarness(t, withStore)
	second.unlock(urlOne, &w)
	second.tick()
	second.waitTicks(supervisor.TaskTokenAccounts, "unchanged", 1)
	assert.Empty(t, second.updates())
}
