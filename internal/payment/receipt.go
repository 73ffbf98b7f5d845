package payment

import (
	"github.com/noah-isme/backend-pay/internal/common"
)

// maxReceiptLen is the gateway's maximum receipt length.
const maxReceiptLen = 40

// ReceiptGenerator derives the gateway-facing receipt identifier for an
// internal order. The receipt doubles as the idempotency key the provider
// uses to deduplicate retried create calls, so it must be deterministic.
type ReceiptGenerator struct {
	Prefix string
}

// Receipt returns the namespaced receipt for orderID. When the plain form
// would exceed the gateway limit the order id is replaced with a truncated
// SHA-256 digest, keeping the result deterministic and collision-resistant.
func (g ReceiptGenerator) Receipt(orderID string) string {
	plain := g.Prefix + orderID
	if len(plain) <= maxReceiptLen {
		return plain
	}
	digest := common.Sha256Hex(orderID)
	room := maxReceiptLen - len(g.Prefix)
	if room <= 0 {
		return digest[:maxReceiptLen]
	}
	if room > len(digest) {
		room = len(digest)
	}
	return g.Prefix + digest[:room]
}
