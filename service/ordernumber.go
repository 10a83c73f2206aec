package service

import "math/rand"

const (
	orderNumberAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	orderNumberLength   = 8
)

// newOrderNumber returns a short human-readable code. Uniqueness is not
// assumed: callers must check for collisions and retry (see
// OrderService.generateOrderNumber).
func newOrderNumber() string {
	b := make([]byte, orderNumberLength)
	for i := range b {
		b[i] = orderNumberAlphabet[rand.Intn(len(orderNumberAlphabet))]
	}
	return string(b)
}
