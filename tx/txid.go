package tx

import (
	"fmt"

	"github.com/bsv-blockchain/go-sdk/chainhash"
)

// TxIDString renders a 32-byte internal-order txid in display (reversed) hex.
func TxIDString(txID []byte) (string, error) {
	h, err := chainhash.NewHash(txID)
	if err != nil {
		return "", fmt.Errorf("%w: %w", ErrInvalidObjectID, err)
	}
	return h.String(), nil
}

// ParseTxID converts a display-hex txid into internal byte order.
func ParseTxID(s string) ([]byte, error) {
	if len(s) != 2*TxIDLen {
		return nil, fmt.Errorf("%w: %q", ErrInvalidObjectID, s)
	}
	h, err := chainhash.NewHashFromHex(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrInvalidObjectID, err)
	}
	return h.CloneBytes(), nil
}
