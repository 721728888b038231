package notify

// DeliveryStatus classifies the outcome of a single device send.
type DeliveryStatus int

const (
	// StatusDelivered means the gateway accepted the message.
	StatusDelivered DeliveryStatus = iota
	// StatusInvalidToken means the gateway reported the token as
	// permanently dead (unregistered / not found). The token is a cleanup
	// candidate.
	StatusInvalidToken
	// StatusFailed covers every other per-device failure. Recorded for
	// observability, never fatal to the batch.
	StatusFailed
)

// Delivery is the typed outcome of one device send.
type Delivery struct {
	Token  string
	Status DeliveryStatus
	Err    error
}

// DispatchResult aggregates a fan-out. Invariants: Sent <= Total and
// Cleaned <= Total.
type DispatchResult struct {
	Sent       int
	Total      int
	Cleaned    int
	Deliveries []Delivery
}

// InvalidTokens returns the tokens classified permanently invalid during the
// batch, in delivery order.
func (r *DispatchResult) InvalidTokens() []string {
	var invalid []string
	for _, d := range r.Deliveries {
		if d.Status == StatusInvalidToken {
			invalid = append(invalid, d.Token)
		}
	}
	return invalid
}
