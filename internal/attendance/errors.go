package attendance

// Kind classifies why a proof submission was rejected. Every rejection is
// recovered into a structured response; none of these is a fatal condition.
type Kind string

const (
	KindInvalidInput      Kind = "invalid_input"
	KindUnknownConsumer   Kind = "unknown_consumer"
	KindInvalidToken      Kind = "invalid_token"
	KindTokenExpired      Kind = "token_expired"
	KindTokenRotated      Kind = "token_rotated"
	KindDuplicateForToken Kind = "duplicate_for_token"
	KindDuplicateForDay   Kind = "duplicate_for_day"
	KindStoreUnavailable  Kind = "store_unavailable"
)
