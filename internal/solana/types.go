package solana

import (
	"encoding/base64"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
)

// Commitment is the ledger confirmation level a query observes.
type Commitment string

// Commitment levels.
const (
	CommitmentProcessed Commitment = "processed"
	CommitmentConfirmed Commitment = "confirmed"
	CommitmentFinalized Commitment = "finalized"
)

// Valid reports whether c is a known commitment level or empty.
func (c Commitment) Valid() bool {
	switch c {
	case "", CommitmentProcessed, CommitmentConfirmed, CommitmentFinalized:
		return true
	}
	return false
}

// Context is the slot a response was evaluated at.
type Context struct {
	Slot uint64 `json:"slot"`
}

// AccountInfo is an on-chain account with raw data.
type AccountInfo struct {
	Lamports   uint64
	Owner      Address
	Data       []byte
	Executable bool
	RentEpoch  uint64
}

// nodeAccountInfo is the node encoding of AccountInfo with base64 data.
type nodeAccountInfo struct {
	Lamports   uint64   `json:"lamports"`
	Owner      Address  `json:"owner"`
	Data       []string `json:"data"` // [base64_data, encoding]
	Executable bool     `json:"executable"`
	RentEpoch  uint64   `json:"rentEpoch"`
}

// MarshalJSON encodes the account as the node returns it.
func (a AccountInfo) MarshalJSON() ([]byte, error) {
	return json.Marshal(nodeAccountInfo{
		Lamports:   a.Lamports,
		Owner:      a.Owner,
		Data:       []string{base64.StdEncoding.EncodeToString(a.Data), "base64"},
		Executable: a.Executable,
		RentEpoch:  a.RentEpoch,
	})
}

// UnmarshalJSON decodes the node's base64 account encoding.
func (a *AccountInfo) UnmarshalJSON(data []byte) error {
	var raw nodeAccountInfo
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	a.Lamports = raw.Lamports
	a.Owner = raw.Owner
	a.Executable = raw.Executable
	a.RentEpoch = raw.RentEpoch
	a.Data = nil
	if len(raw.Data) >= 1 {
		if len(raw.Data) >= 2 && raw.Data[1] != "base64" {
			return fmt.Errorf("unsupported account encoding %q", raw.Data[1])
		}
		decoded, err := base64.StdEncoding.DecodeString(raw.Data[0])
		if err != nil {
			return fmt.Errorf("decode account data: %w", err)
		}
		a.Data = decoded
	}
	return nil
}

// AccountInfoResult wraps an optional account with its context.
type AccountInfoResult struct {
	Context Context      `json:"context"`
	Value   *AccountInfo `json:"value"`
}

// KeyedAccount is an account together with its address.
type KeyedAccount struct {
	Pubkey  Address     `json:"pubkey"`
	Account AccountInfo `json:"account"`
}

// KeyedAccountsResult wraps keyed accounts with their context.
type KeyedAccountsResult struct {
	Context Context        `json:"context"`
	Value   []KeyedAccount `json:"value"`
}

// ParsedAccountInfo is an account whose data the node decoded to JSON.
// Data holds either the parsed object or the raw [base64, encoding] pair.
type ParsedAccountInfo struct {
	Lamports   uint64          `json:"lamports"`
	Owner      Address         `json:"owner"`
	Data       json.RawMessage `json:"data"`
	Executable bool            `json:"executable"`
	RentEpoch  uint64          `json:"rentEpoch"`
}

// ParsedKeyedAccount is a parsed account with its address.
type ParsedKeyedAccount struct {
	Pubkey  Address           `json:"pubkey"`
	Account ParsedAccountInfo `json:"account"`
}

// ParsedAccountResult wraps an optional parsed account.
type ParsedAccountResult struct {
	Context Context            `json:"context"`
	Value   *ParsedAccountInfo `json:"value"`
}

// ParsedKeyedAccountsResult wraps parsed keyed accounts.
type ParsedKeyedAccountsResult struct {
	Context Context              `json:"context"`
	Value   []ParsedKeyedAccount `json:"value"`
}

// Blockhash is a recent blockhash with its expiry height.
type Blockhash struct {
	Blockhash            string `json:"blockhash"`
	LastValidBlockHeight uint64 `json:"lastValidBlockHeight"`
}

// BlockhashResult wraps a blockhash with its context.
type BlockhashResult struct {
	Context Context   `json:"context"`
	Value   Blockhash `json:"value"`
}

// TokenAccountsFilter selects token accounts by mint or by token program.
// Exactly one field must be set.
type TokenAccountsFilter struct {
	Mint      *Address `json:"mint,omitempty"`
	ProgramID *Address `json:"programId,omitempty"`
}

// Validate checks that exactly one selector is set.
func (f TokenAccountsFilter) Validate() error {
	if (f.Mint == nil) == (f.ProgramID == nil) {
		return errors.New("token accounts filter needs exactly one of mint or programId")
	}
	return nil
}

// TokenAmount is a raw token balance with its UI rendering.
type TokenAmount struct {
	Amount         string   `json:"amount"`
	Decimals       uint8    `json:"decimals"`
	UIAmount       *float64 `json:"uiAmount"`
	UIAmountString string   `json:"uiAmountString"`
}

// TokenAmountResult wraps a token amount with its context.
type TokenAmountResult struct {
	Context Context     `json:"context"`
	Value   TokenAmount `json:"value"`
}

// TokenAccountBalancePair is one entry of getTokenLargestAccounts.
type TokenAccountBalancePair struct {
	Address Address `json:"address"`
	TokenAmount
}

// TokenLargestAccountsResult wraps the largest holders of a mint.
type TokenLargestAccountsResult struct {
	Context Context                   `json:"context"`
	Value   []TokenAccountBalancePair `json:"value"`
}

// SignatureInfo contains signature information from getSignaturesForAddress.
type SignatureInfo struct {
	Signature          string          `json:"signature"`
	Slot               uint64          `json:"slot"`
	BlockTime          *int64          `json:"blockTime"`
	Err                json.RawMessage `json:"err"`
	Memo               *string         `json:"memo"`
	ConfirmationStatus string          `json:"confirmationStatus,omitempty"`
}

// SignaturesOpts contains options for getSignaturesForAddress.
type SignaturesOpts struct {
	Before     string     `json:"before,omitempty"`
	Until      string     `json:"until,omitempty"`
	Limit      int        `json:"limit,omitempty"`
	Commitment Commitment `json:"commitment,omitempty"`
}

// SendOptions configures sendTransaction.
type SendOptions struct {
	SkipPreflight       bool       `json:"skipPreflight,omitempty"`
	PreflightCommitment Commitment `json:"preflightCommitment,omitempty"`
	MaxRetries          *uint64    `json:"maxRetries,omitempty"`
	MinContextSlot      *uint64    `json:"minContextSlot,omitempty"`
}

// SimulateOptions configures simulateTransaction.
type SimulateOptions struct {
	SigVerify              bool       `json:"sigVerify,omitempty"`
	ReplaceRecentBlockhash bool       `json:"replaceRecentBlockhash,omitempty"`
	Commitment             Commitment `json:"commitment,omitempty"`
	Accounts               []Address  `json:"accounts,omitempty"`
}

// SimulateValue is the outcome of a simulated transaction.
type SimulateValue struct {
	Err           json.RawMessage `json:"err"`
	Logs          []string        `json:"logs"`
	UnitsConsumed *uint64         `json:"unitsConsumed,omitempty"`
	ReturnData    json.RawMessage `json:"returnData,omitempty"`
}

// SimulateResult wraps a simulation outcome with its context.
type SimulateResult struct {
	Context Context       `json:"context"`
	Value   SimulateValue `json:"value"`
}

// FeeResult is the fee for a message, nil when the blockhash expired.
type FeeResult struct {
	Context Context `json:"context"`
	Value   *uint64 `json:"value"`
}

// MemcmpFilter matches account data bytes at an offset.
type MemcmpFilter struct {
	Offset uint64 `json:"offset"`
	Bytes  string `json:"bytes"` // base58
}

// ProgramAccountFilter is a getProgramAccounts filter entry.
type ProgramAccountFilter struct {
	Memcmp   *MemcmpFilter `json:"memcmp,omitempty"`
	DataSize *uint64       `json:"dataSize,omitempty"`
}

// DataSlice limits returned account data.
type DataSlice struct {
	Offset uint64 `json:"offset"`
	Length uint64 `json:"length"`
}

// ProgramAccountsOpts configures getProgramAccounts.
type ProgramAccountsOpts struct {
	Commitment Commitment             `json:"commitment,omitempty"`
	Filters    []ProgramAccountFilter `json:"filters,omitempty"`
	DataSlice  *DataSlice             `json:"dataSlice,omitempty"`
}

// ConfirmValue is the status of a confirmed signature.
type ConfirmValue struct {
	Err json.RawMessage `json:"err"`
}

// ConfirmResult is returned once a signature is observed on chain.
type ConfirmResult struct {
	Context Context      `json:"context"`
	Value   ConfirmValue `json:"value"`
}

// AddressLookupTableState is the decoded lookup-table account.
type AddressLookupTableState struct {
	DeactivationSlot           uint64    `json:"deactivationSlot"`
	LastExtendedSlot           uint64    `json:"lastExtendedSlot"`
	LastExtendedSlotStartIndex uint8     `json:"lastExtendedSlotStartIndex"`
	Authority                  *Address  `json:"authority,omitempty"`
	Addresses                  []Address `json:"addresses"`
}

// AddressLookupTable is a lookup table account with its key.
type AddressLookupTable struct {
	Key   Address                 `json:"key"`
	State AddressLookupTableState `json:"state"`
}

// IsActive reports whether the table has not been deactivated.
func (t *AddressLookupTable) IsActive() bool {
	return t.State.DeactivationSlot == ^uint64(0)
}

// AddressLookupTableResult wraps an optional lookup table.
type AddressLookupTableResult struct {
	Context Context             `json:"context"`
	Value   *AddressLookupTable `json:"value"`
}

// Lookup table account layout.
const (
	lookupTableMetaSize     = 56
	lookupTableTypeIndex    = 1
	lookupTableDeactivation = 4
	lookupTableExtended     = 12
	lookupTableStartIndex   = 20
	lookupTableHasAuthority = 21
	lookupTableAuthority    = 22
)

// DecodeAddressLookupTable parses lookup-table account data.
func DecodeAddressLookupTable(key Address, data []byte) (*AddressLookupTable, error) {
	if len(data) < lookupTableMetaSize {
		return nil, fmt.Errorf("lookup table data too short: %d", len(data))
	}
	if binary.LittleEndian.Uint32(data[0:4]) != lookupTableTypeIndex {
		return nil, errors.New("account is not an address lookup table")
	}
	if (len(data)-lookupTableMetaSize)%AddressLength != 0 {
		return nil, fmt.Errorf("lookup table address region has invalid length %d", len(data)-lookupTableMetaSize)
	}

	state := AddressLookupTableState{
		DeactivationSlot:           binary.LittleEndian.Uint64(data[lookupTableDeactivation:]),
		LastExtendedSlot:           binary.LittleEndian.Uint64(data[lookupTableExtended:]),
		LastExtendedSlotStartIndex: data[lookupTableStartIndex],
	}
	if data[lookupTableHasAuthority] == 1 {
		var auth Address
		copy(auth[:], data[lookupTableAuthority:lookupTableAuthority+AddressLength])
		state.Authority = &auth
	}
	n := (len(data) - lookupTableMetaSize) / AddressLength
	state.Addresses = make([]Address, n)
	for i := 0; i < n; i++ {
		off := lookupTableMetaSize + i*AddressLength
		copy(state.Addresses[i][:], data[off:off+AddressLength])
	}
	return &AddressLookupTable{Key: key, State: state}, nil
}
