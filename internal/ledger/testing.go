package ledger

// SeedBalance is a test helper that seeds the balance for an account when using the in-memory ledger.
// The account is created when it does not exist; key may be empty for accounts that never sign.
func SeedBalance(l Client, address, key string, amount int64) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.balances[address] = amount
		if key != "" {
			mem.keys[address] = key
		}
	}
}

// SetFailure makes every subsequent in-memory ledger call fail with err until
// it is reset with a nil error.
func SetFailure(l Client, err error) {
	if mem, ok := l.(*inMemoryLedger); ok {
		mem.mu.Lock()
		defer mem.mu.Unlock()
		mem.failure = err
	}
}
