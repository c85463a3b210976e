// Package tokenstest scripts wallet token state on a stub transport.
package tokenstest

import (
	"encoding/binary"
	"sync"

	"solana-conn-proxy/internal/solana"
	"solana-conn-proxy/internal/solana/stub"
	"solana-conn-proxy/internal/tokens"
)

// Token describes one token account held by the wallet.
type Token struct {
	Key      solana.Address
	Mint     solana.Address
	Program  solana.Address
	Amount   uint64
	Decimals uint8
	Supply   uint64
	Name     string
	URI      string
}

// Wallet is mutable token state served through getTokenAccountsByOwner and
// getMultipleAccounts. It is safe for concurrent use.
type Wallet struct {
	mu     sync.Mutex
	owner  solana.Address
	tokens map[solana.Address]Token
}

// NewWallet creates an empty wallet.
func NewWallet(owner solana.Address) *Wallet {
	return &Wallet{owner: owner, tokens: make(map[solana.Address]Token)}
}

// Owner returns the wallet address.
func (w *Wallet) Owner() solana.Address {
	return w.owner
}

// Put adds or replaces a token. A zero Program means the SPL Token program.
func (w *Wallet) Put(t Token) {
	if t.Program.IsZero() {
		t.Program = solana.TokenProgramID
	}
	w.mu.Lock()
	defer w.mu.Unlock()
	w.tokens[t.Key] = t
}

// SetAmount changes the balance of an existing token.
func (w *Wallet) SetAmount(key solana.Address, amount uint64) {
	w.mu.Lock()
	defer w.mu.Unlock()
	t := w.tokens[key]
	t.Amount = amount
	w.tokens[key] = t
}

// Remove deletes a token.
func (w *Wallet) Remove(key solana.Address) {
	w.mu.Lock()
	defer w.mu.Unlock()
	delete(w.tokens, key)
}

// Install registers the wallet's handlers on tr.
func (w *Wallet) Install(tr *stub.Transport) *stub.Transport {
	tr.Handle(solana.MethodGetTokenAccountsByOwner, w.tokenAccounts)
	tr.Handle(solana.MethodGetMultipleAccounts, w.multipleAccounts)
	return tr
}

func (w *Wallet) tokenAccounts(params []any) (any, error) {
	filter, _ := params[1].(solana.TokenAccountsFilter)
	w.mu.Lock()
	defer w.mu.Unlock()

	value := []solana.KeyedAccount{}
	for _, t := range w.tokens {
		if filter.ProgramID != nil && *filter.ProgramID != t.Program {
			continue
		}
		value = append(value, solana.KeyedAccount{
			Pubkey: t.Key,
			Account: solana.AccountInfo{
				Lamports: 2039280,
				Owner:    t.Program,
				Data:     EncodeTokenAccount(t.Mint, w.owner, t.Amount),
			},
		})
	}
	return map[string]any{"context": map[string]any{"slot": 1}, "value": value}, nil
}

func (w *Wallet) multipleAccounts(params []any) (any, error) {
	keys, _ := params[0].([]string)
	w.mu.Lock()
	defer w.mu.Unlock()

	accounts := make(map[string]solana.AccountInfo)
	for _, t := range w.tokens {
		accounts[t.Mint.String()] = solana.AccountInfo{
			Lamports: 1461600,
			Owner:    t.Program,
			Data:     EncodeMint(t.Supply, t.Decimals),
		}
		if t.Name == "" && t.URI == "" {
			continue
		}
		pda, err := solana.MetadataAddress(t.Mint)
		if err != nil {
			continue
		}
		accounts[pda.String()] = solana.AccountInfo{
			Lamports: 5616720,
			Owner:    solana.TokenMetadataProgramID,
			Data:     EncodeMetadata(t.Mint, t.Name, "", t.URI),
		}
	}

	value := make([]*solana.AccountInfo, len(keys))
	for i, k := range keys {
		if acc, ok := accounts[k]; ok {
			value[i] = &acc
		}
	}
	return map[string]any{"context": map[string]any{"slot": 1}, "value": value}, nil
}

// EncodeTokenAccount builds an initialized token account.
func EncodeTokenAccount(mint, owner solana.Address, amount uint64) []byte {
	data := make([]byte, tokens.TokenAccountSize)
	copy(data[0:32], mint[:])
	copy(data[32:64], owner[:])
	binary.LittleEndian.PutUint64(data[64:72], amount)
	data[108] = tokens.AccountInitialized
	return data
}

// EncodeMint builds an initialized mint without authorities.
func EncodeMint(supply uint64, decimals uint8) []byte {
	data := make([]byte, tokens.MintSize)
	binary.LittleEndian.PutUint64(data[36:44], supply)
	data[44] = decimals
	data[45] = 1
	return data
}

// EncodeMetadata builds a Metaplex metadata account.
func EncodeMetadata(mint solana.Address, name, symbol, uri string) []byte {
	data := make([]byte, 0, 256)
	data = append(data, 4)
	data = append(data, make([]byte, 32)...)
	data = append(data, mint[:]...)
	for _, s := range []string{name, symbol, uri} {
		data = binary.LittleEndian.AppendUint32(data, uint32(len(s)))
		data = append(data, s...)
	}
	data = binary.LittleEndian.AppendUint16(data, 500)
	return data
}
