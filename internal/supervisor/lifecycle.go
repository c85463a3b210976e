package supervisor

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"solana-conn-proxy/internal/events"
	"solana-conn-proxy/internal/solana"
)

// ErrMissingURL is returned when an event that builds a connection carries
// no endpoint.
var ErrMissingURL = errors.New("connection url is required")

// HandleEvent applies one lifecycle event. Transitions never interleave.
// Unrecognized events are ignored.
func (s *Supervisor) HandleEvent(_ context.Context, e events.Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var err error
	switch e.Name {
	case events.KeyringCreated, events.KeyringUnlocked:
		err = s.onUnlocked(e)
	case events.KeyringLocked:
		s.onLocked()
	case events.ActiveWalletUpdated:
		err = s.onActiveWalletUpdated(e)
	case events.ConnectionURLUpdated:
		err = s.onConnectionURLUpdated(e)
	case events.BlockchainKeyringCreated:
		err = s.onBlockchainKeyringCreated(e)
	case events.BlockchainKeyringDeleted:
		err = s.onBlockchainKeyringDeleted(e)
	default:
		s.logger.Debug("ignoring event", zap.String("event", e.Name))
		return nil
	}
	if err != nil {
		return err
	}

	s.metrics.RecordTransition(e.Name)
	s.logger.Debug("transition applied",
		zap.String("event", e.Name),
		zap.Stringer("state", s.state),
		zap.Int("poll_tasks", s.poller.active()),
	)
	return nil
}

func parseWallet(s string) (*solana.Address, error) {
	if s == "" {
		return nil, nil
	}
	a, err := solana.ParseAddress(s)
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (s *Supervisor) onUnlocked(e events.Event) error {
	var data events.KeyringUnlockedData
	if err := e.Decode(&data); err != nil {
		return err
	}
	if data.ConnectionURL == "" {
		return fmt.Errorf("%s: %w", e.Name, ErrMissingURL)
	}
	if data.Commitment != "" && !data.Commitment.Valid() {
		return fmt.Errorf("%s: invalid commitment %q", e.Name, data.Commitment)
	}
	wallet, err := parseWallet(data.ActiveWalletsByChain[events.ChainSolana])
	if err != nil {
		return fmt.Errorf("%s: active wallet: %w", e.Name, err)
	}

	s.stopPollingLocked()
	s.connectLocked(data.ConnectionURL, data.Commitment, wallet)
	s.state = StateUnlocked
	if wallet != nil {
		s.startPollingLocked()
	}
	return nil
}

func (s *Supervisor) onLocked() {
	s.stopPollingLocked()
	if s.conn != nil {
		s.state = StateLocked
	}
}

func (s *Supervisor) onActiveWalletUpdated(e events.Event) error {
	var data events.ActiveWalletUpdatedData
	if err := e.Decode(&data); err != nil {
		return err
	}
	wallet, err := parseWallet(data.ActiveWallet)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}

	s.stopPollingLocked()
	s.withWalletLocked(wallet)
	if wallet == nil {
		return nil
	}
	switch s.state {
	case StateUnlocked, StateDisabled:
		s.state = StateUnlocked
		s.startPollingLocked()
	}
	return nil
}

func (s *Supervisor) onConnectionURLUpdated(e events.Event) error {
	var data events.ConnectionURLUpdatedData
	if err := e.Decode(&data); err != nil {
		return err
	}
	if data.URL == "" {
		return fmt.Errorf("%s: %w", e.Name, ErrMissingURL)
	}
	wallet, err := parseWallet(data.ActiveWallet)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}

	commitment := solana.CommitmentConfirmed
	if s.conn != nil {
		commitment = s.conn.ctx.Commitment
	}

	s.stopPollingLocked()
	s.connectLocked(data.URL, commitment, wallet)

	switch {
	case s.state == StateLocked:
		// Reconfigured while locked; polling resumes on unlock.
	case wallet == nil:
		s.state = StateDisabled
	default:
		s.state = StateUnlocked
		s.startPollingLocked()
	}
	return nil
}

func (s *Supervisor) onBlockchainKeyringCreated(e events.Event) error {
	var data events.BlockchainKeyringCreatedData
	if err := e.Decode(&data); err != nil {
		return err
	}
	if data.Chain != events.ChainSolana {
		return nil
	}
	wallet, err := parseWallet(data.ActiveWallet)
	if err != nil {
		return fmt.Errorf("%s: %w", e.Name, err)
	}
	if wallet == nil {
		return fmt.Errorf("%s: active wallet is required", e.Name)
	}

	s.stopPollingLocked()
	s.withWalletLocked(wallet)
	if s.conn != nil && s.state != StateLocked {
		s.state = StateUnlocked
		s.startPollingLocked()
	}
	return nil
}

func (s *Supervisor) onBlockchainKeyringDeleted(e events.Event) error {
	var data events.BlockchainKeyringDeletedData
	if err := e.Decode(&data); err != nil {
		return err
	}
	if data.Chain != events.ChainSolana {
		return nil
	}

	s.stopPollingLocked()
	s.withWalletLocked(nil)
	if s.state == StateUnlocked {
		s.state = StateDisabled
	}
	return nil
}
