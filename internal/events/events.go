// Package events defines the notifications exchanged between the keyring,
// the connection supervisor and foreground views, and the bus that
// carries them.
package events

import (
	"encoding/json"
	"fmt"

	"solana-conn-proxy/internal/solana"
)

// Lifecycle notifications consumed by the supervisor.
const (
	KeyringCreated           = "keyring-created"
	KeyringUnlocked          = "keyring-unlocked"
	KeyringLocked            = "keyring-locked"
	ActiveWalletUpdated      = "active-wallet-updated"
	ConnectionURLUpdated     = "connection-url-updated"
	BlockchainKeyringCreated = "blockchain-keyring-created"
	BlockchainKeyringDeleted = "blockchain-keyring-deleted"
)

// Notifications produced by the supervisor.
const (
	TokenAccountsDidUpdate = "token-accounts-did-update"
)

// Bus topics.
const (
	TopicLifecycle     = "lifecycle"
	TopicNotifications = "notifications"
)

// ChainSolana identifies this chain in multi-chain payloads.
const ChainSolana = "solana"

// Event is a named notification with a JSON payload.
type Event struct {
	Name string          `json:"name"`
	Data json.RawMessage `json:"data,omitempty"`
}

// New builds an event with data JSON encoded.
func New(name string, data any) (Event, error) {
	e := Event{Name: name}
	if data == nil {
		return e, nil
	}
	b, err := json.Marshal(data)
	if err != nil {
		return Event{}, fmt.Errorf("encode %s: %w", name, err)
	}
	e.Data = b
	return e, nil
}

// Decode unmarshals the payload into dst.
func (e Event) Decode(dst any) error {
	if len(e.Data) == 0 {
		return fmt.Errorf("%s: missing payload", e.Name)
	}
	if err := json.Unmarshal(e.Data, dst); err != nil {
		return fmt.Errorf("decode %s: %w", e.Name, err)
	}
	return nil
}

// KeyringUnlockedData is the payload of keyring-created and keyring-unlocked.
type KeyringUnlockedData struct {
	ActiveWalletsByChain map[string]string `json:"activeWalletsByChain"`
	ConnectionURL        string            `json:"connectionUrl"`
	Commitment           solana.Commitment `json:"commitment,omitempty"`
}

// ActiveWalletUpdatedData is the payload of active-wallet-updated.
type ActiveWalletUpdatedData struct {
	ActiveWallet string `json:"activeWallet"`
}

// ConnectionURLUpdatedData is the payload of connection-url-updated. An
// empty ActiveWallet means the chain is disabled.
type ConnectionURLUpdatedData struct {
	ActiveWallet string `json:"activeWallet,omitempty"`
	URL          string `json:"url"`
}

// BlockchainKeyringCreatedData is the payload of blockchain-keyring-created.
type BlockchainKeyringCreatedData struct {
	Chain        string `json:"chain"`
	ActiveWallet string `json:"activeWallet"`
}

// BlockchainKeyringDeletedData is the payload of blockchain-keyring-deleted.
type BlockchainKeyringDeletedData struct {
	Chain string `json:"chain"`
}

// TokenAccountsDidUpdateData is the payload of token-accounts-did-update.
// Aggregate holds the token aggregate in its transport-safe JSON form.
type TokenAccountsDidUpdateData struct {
	ConnectionURL string          `json:"connectionUrl"`
	WalletAddress string          `json:"walletAddress"`
	Aggregate     json.RawMessage `json:"customSplTokenAccounts"`
}
