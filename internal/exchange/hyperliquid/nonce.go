package hyperliquid

import (
	"sync/atomic"
	"time"
)

// NonceSource issues strictly increasing millisecond nonces. The clock may
// stall or step back; the watermark never does.
type NonceSource struct {
	last atomic.Uint64
	now  func() time.Time
}

func NewNonceSource() *NonceSource {
	return &NonceSource{now: time.Now}
}

func (n *NonceSource) Next() uint64 {
	for {
		prev := n.last.Load()
		next := uint64(n.now().UnixMilli())
		if next <= prev {
			next = prev + 1
		}
		if n.last.CompareAndSwap(prev, next) {
			return next
		}
	}
}
