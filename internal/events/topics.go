package events

const (
	TopicReservationExpired = "reservation.expired"
	TopicOrderCommitted     = "order.committed"
	TopicSessionEnded       = "session.ended"
)

// PartitionKey keeps all events for one aggregate on one partition so
// consumers observe them in order.
func PartitionKey(id string) []byte { return []byte(id) }
