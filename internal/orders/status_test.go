package orders

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition(t *testing.T) {
	assert.True(t, CanTransition(StatusPendingPayment, StatusPaid))
	assert.True(t, CanTransition(StatusPaid, StatusShipped))
	assert.True(t, CanTransition(StatusShipped, StatusDelivered))
	assert.True(t, CanTransition(StatusPaid, StatusCancelled))

	assert.False(t, CanTransition(StatusDelivered, StatusShipped), "no going backwards")
	assert.False(t, CanTransition(StatusCancelled, StatusPaid), "cancelled is terminal")
	assert.False(t, CanTransition(StatusPendingPayment, StatusShipped), "no skipping paid")
	assert.False(t, CanTransition(StatusShipped, StatusCancelled))
}
