package ledger

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// IsEVMAddress reports whether address is a 0x-prefixed 20 byte hex address.
func IsEVMAddress(address string) bool {
	return strings.HasPrefix(address, "0x") && common.IsHexAddress(address)
}

// IsNativeAddress reports whether address has the shard.realm.num form.
func IsNativeAddress(address string) bool {
	parts := strings.Split(address, ".")
	if len(parts) != 3 {
		return false
	}
	for _, p := range parts {
		if p == "" {
			return false
		}
		if _, err := strconv.ParseUint(p, 10, 64); err != nil {
			return false
		}
	}
	return true
}

func validateAddress(address string) error {
	if IsNativeAddress(address) || IsEVMAddress(address) {
		return nil
	}
	return fmt.Errorf("%w: %q", ErrInvalidAddress, address)
}
