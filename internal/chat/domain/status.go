package domain

// DeliveryStatus per message display state on a client
type DeliveryStatus string

const (
	// StatusSending optimistic, waiting ack
	StatusSending DeliveryStatus = "sending"
	// StatusSent acked by server
	StatusSent DeliveryStatus = "sent"
	// StatusDelivered received from another member
	StatusDelivered DeliveryStatus = "delivered"
	// StatusRead read receipt received
	StatusRead DeliveryStatus = "read"
)

var statusRank = map[DeliveryStatus]int{
	StatusSending:   0,
	StatusSent:      1,
	StatusDelivered: 2,
	StatusRead:      3,
}

// Advance return the later of two status, status never moves backwards
func (s DeliveryStatus) Advance(next DeliveryStatus) DeliveryStatus {
	if statusRank[next] > statusRank[s] {
		return next
	}
	return s
}
