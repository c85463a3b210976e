// Package wire defines the message-channel protocol between the connection
// supervisor and its remote proxies: the request envelope, the method set,
// error codes and the transport-safe encodings of domain types.
package wire

// Channel methods served by the supervisor.
const (
	MethodCustomSplTokenAccounts         = "customSplTokenAccounts"
	MethodCustomSplMetadataURI           = "customSplMetadataUri"
	MethodGetAccountInfo                 = "getAccountInfo"
	MethodGetAccountInfoAndContext       = "getAccountInfoAndContext"
	MethodGetLatestBlockhash             = "getLatestBlockhash"
	MethodGetLatestBlockhashAndContext   = "getLatestBlockhashAndContext"
	MethodGetTokenAccountsByOwner        = "getTokenAccountsByOwner"
	MethodSendRawTransaction             = "sendRawTransaction"
	MethodConfirmTransaction             = "confirmTransaction"
	MethodSimulateTransaction            = "simulateTransaction"
	MethodGetMultipleAccountsInfo        = "getMultipleAccountsInfo"
	MethodGetConfirmedSignaturesForAddr2 = "getConfirmedSignaturesForAddress2"
	MethodGetParsedTransactions          = "getParsedTransactions"
	MethodGetParsedTransaction           = "getParsedTransaction"
	MethodGetProgramAccounts             = "getProgramAccounts"
	MethodGetFeeForMessage               = "getFeeForMessage"
	MethodGetMinimumBalanceForRentExempt = "getMinimumBalanceForRentExemption"
	MethodGetTokenAccountBalance         = "getTokenAccountBalance"
	MethodGetBalance                     = "getBalance"
	MethodGetSlot                        = "getSlot"
	MethodGetBlockTime                   = "getBlockTime"
	MethodGetParsedTokenAccountsByOwner  = "getParsedTokenAccountsByOwner"
	MethodGetTokenLargestAccounts        = "getTokenLargestAccounts"
	MethodGetParsedAccountInfo           = "getParsedAccountInfo"
	MethodGetParsedProgramAccounts       = "getParsedProgramAccounts"
	MethodGetAddressLookupTable          = "getAddressLookupTable"
)

var supported = map[string]bool{
	MethodCustomSplTokenAccounts:         true,
	MethodCustomSplMetadataURI:           true,
	MethodGetAccountInfo:                 true,
	MethodGetAccountInfoAndContext:       true,
	MethodGetLatestBlockhash:             true,
	MethodGetLatestBlockhashAndContext:   true,
	MethodGetTokenAccountsByOwner:        true,
	MethodSendRawTransaction:             true,
	MethodConfirmTransaction:             true,
	MethodSimulateTransaction:            true,
	MethodGetMultipleAccountsInfo:        true,
	MethodGetConfirmedSignaturesForAddr2: true,
	MethodGetParsedTransactions:          true,
	MethodGetParsedTransaction:           true,
	MethodGetProgramAccounts:             true,
	MethodGetFeeForMessage:               true,
	MethodGetMinimumBalanceForRentExempt: true,
	MethodGetTokenAccountBalance:         true,
	MethodGetBalance:                     true,
	MethodGetSlot:                        true,
	MethodGetBlockTime:                   true,
	MethodGetParsedTokenAccountsByOwner:  true,
	MethodGetTokenLargestAccounts:        true,
	MethodGetParsedAccountInfo:           true,
	MethodGetParsedProgramAccounts:       true,
	MethodGetAddressLookupTable:          true,
}

// Connection operations the proxy recognizes but does not forward.
var unsupported = map[string]bool{
	"getBalanceAndContext":               true,
	"getMinimumLedgerSlot":               true,
	"getFirstAvailableBlock":             true,
	"getSupply":                          true,
	"getTokenSupply":                     true,
	"getLargestAccounts":                 true,
	"getMultipleAccountsInfoAndContext":  true,
	"getStakeActivation":                 true,
	"getClusterNodes":                    true,
	"getVoteAccounts":                    true,
	"getSlotLeader":                      true,
	"getSlotLeaders":                     true,
	"getSignatureStatus":                 true,
	"getSignatureStatuses":               true,
	"getTransactionCount":                true,
	"getTotalSupply":                     true,
	"getInflationGovernor":               true,
	"getInflationReward":                 true,
	"getEpochInfo":                       true,
	"getEpochSchedule":                   true,
	"getLeaderSchedule":                  true,
	"getRecentBlockhashAndContext":       true,
	"getRecentPerformanceSamples":        true,
	"getFeeCalculatorForBlockhash":       true,
	"getRecentBlockhash":                 true,
	"getVersion":                         true,
	"getGenesisHash":                     true,
	"getBlock":                           true,
	"getBlockHeight":                     true,
	"getBlockProduction":                 true,
	"getTransaction":                     true,
	"getConfirmedBlock":                  true,
	"getBlocks":                          true,
	"getBlockSignatures":                 true,
	"getConfirmedBlockSignatures":        true,
	"getConfirmedTransaction":            true,
	"getParsedConfirmedTransaction":      true,
	"getParsedConfirmedTransactions":     true,
	"getConfirmedSignaturesForAddress":   true,
	"getSignaturesForAddress":            true,
	"getNonceAndContext":                 true,
	"getNonce":                           true,
	"requestAirdrop":                     true,
	"sendTransaction":                    true,
	"sendEncodedTransaction":             true,
	"onAccountChange":                    true,
	"removeAccountChangeListener":        true,
	"onProgramAccountChange":             true,
	"removeProgramAccountChangeListener": true,
	"onLogs":                             true,
	"removeOnLogsListener":               true,
	"onSlotChange":                       true,
	"removeSlotChangeListener":           true,
	"onSlotUpdate":                       true,
	"removeSlotUpdateListener":           true,
	"onSignature":                        true,
	"onSignatureWithOptions":             true,
	"removeSignatureListener":            true,
	"onRootChange":                       true,
	"removeRootChangeListener":           true,
}

// IsSupported reports whether method is served over the channel.
func IsSupported(method string) bool {
	return supported[method]
}

// IsUnsupported reports whether method is a known connection operation
// that must fail without being sent.
func IsUnsupported(method string) bool {
	return unsupported[method]
}

// SupportedMethods returns the served method names.
func SupportedMethods() []string {
	out := make([]string, 0, len(supported))
	for m := range supported {
		out = append(out, m)
	}
	return out
}
