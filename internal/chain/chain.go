// Package chain abstracts the external authoritative state that
// mirrors wallet-keyed subscribers. The broker only reads from it:
// balances and delivery counters for on-chain subscribers. Wallet
// transaction construction and the on-chain programs themselves live
// outside this repository.
package chain

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/shopspring/decimal"
)

// Account is the mirrored state for one wallet.
type Account struct {
	Wallet         string          `json:"walletAddress"`
	Balance        decimal.Decimal `json:"balance"`
	AlertsReceived int64           `json:"alertsReceived"`
	Active         bool            `json:"active"`
}

// StateReader reads authoritative account state. found is false when
// the wallet has no mirrored record; err signals the state being
// unreachable (the caller falls back to its cached value).
type StateReader interface {
	Account(ctx context.Context, wallet string) (acct Account, found bool, err error)
}

// HTTPReader reads account state from a JSON mirror service.
type HTTPReader struct {
	base   string
	client *http.Client
}

// NewHTTPReader creates a reader against base (e.g. the indexer that
// mirrors the on-chain subscription program). timeout bounds each call.
func NewHTTPReader(base string, timeout time.Duration) *HTTPReader {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPReader{
		base:   base,
		client: &http.Client{Timeout: timeout},
	}
}

func (r *HTTPReader) Account(ctx context.Context, wallet string) (Account, bool, error) {
	u := fmt.Sprintf("%s/accounts/%s", r.base, url.PathEscape(wallet))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return Account{}, false, err
	}

	resp, err := r.client.Do(req)
	if err != nil {
		return Account{}, false, err
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		var acct Account
		if err := json.NewDecoder(resp.Body).Decode(&acct); err != nil {
			return Account{}, false, err
		}
		return acct, true, nil
	case http.StatusNotFound:
		return Account{}, false, nil
	default:
		return Account{}, false, fmt.Errorf("chain state returned %d", resp.StatusCode)
	}
}

// StaticReader is an in-memory StateReader for development and tests.
type StaticReader struct {
	mu       sync.RWMutex
	accounts map[string]Account
	err      error
}

// NewStaticReader creates an empty StaticReader.
func NewStaticReader() *StaticReader {
	return &StaticReader{accounts: make(map[string]Account)}
}

// Put installs or replaces a mirrored account.
func (r *StaticReader) Put(acct Account) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.accounts[acct.Wallet] = acct
}

// Fail makes every subsequent Account call return err (simulates the
// state being unreachable). Pass nil to recover.
func (r *StaticReader) Fail(err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.err = err
}

func (r *StaticReader) Account(_ context.Context, wallet string) (Account, bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	if r.err != nil {
		return Account{}, false, r.err
	}
	acct, ok := r.accounts[wallet]
	return acct, ok, nil
}
