package swap

// ActionTestStorage selects the storage registration check instead of a swap.
const ActionTestStorage = "test_storage"

// Job is the single JSON instruction one worker invocation reads from stdin.
// Swap jobs carry the six swap fields; storage test jobs carry Action and
// TokenContract.
type Job struct {
	Action         string `json:"action,omitempty"`
	TokenContract  string `json:"token_contract,omitempty"`
	SenderID       string `json:"sender_id,omitempty"`
	TokenIn        string `json:"token_in,omitempty"`
	TokenOut       string `json:"token_out,omitempty"`
	AmountIn       string `json:"amount_in,omitempty"`
	MinAmountOut   string `json:"min_amount_out,omitempty"`
	SwapContractID string `json:"swap_contract_id,omitempty"`
}

// IsStorageTest reports whether the job asks for the registration check.
func (j Job) IsStorageTest() bool { return j.Action == ActionTestStorage }

// Result is the single JSON object a swap job writes to stdout. Absent
// values are serialized as explicit nulls.
type Result struct {
	Success      bool    `json:"success"`
	AmountOut    *string `json:"amount_out"`
	ErrorMessage *string `json:"error_message"`
	IntentHash   *string `json:"intent_hash"`
}

// StorageResult is the stdout shape for storage test jobs.
type StorageResult struct {
	Success           bool    `json:"success"`
	AlreadyRegistered bool    `json:"already_registered"`
	StorageBalance    *string `json:"storage_balance"`
	TxHash            *string `json:"tx_hash"`
	Error             *string `json:"error"`
}

func strptr(s string) *string { return &s }

func failure(message string) Result {
	return Result{ErrorMessage: &message}
}

func (r Result) withAmountOut(amount string) Result {
	r.AmountOut = &amount
	return r
}

func (r Result) withIntentHash(hash string) Result {
	r.IntentHash = &hash
	return r
}
