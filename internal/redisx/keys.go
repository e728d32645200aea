package redisx

import "time"

const (
	// Idempotency fast-path for checkout confirm: idem:checkout:confirm:{intent_id} -> order_id
	KeyIdemConfirm = "idem:checkout:confirm:%s"

	// Dedup event processing: dedup:{service}:{event_id}
	KeyDedup = "dedup:%s:%s"

	// Carrier rate cache, scoped to one checkout: rates:{cart_id}
	KeyRateCache = "rates:%s"

	// Advisory viewer count mirror: viewers:{session_id}
	KeyViewerCount = "viewers:%s"
)

var (
	TTLIdempotency = 24 * time.Hour
	TTLDedup       = 48 * time.Hour
	TTLRateCache   = 30 * time.Minute
	TTLViewerCount = 30 * time.Second
)
