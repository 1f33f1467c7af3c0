// Package sms holds the outbound gateway adapters.
package sms

import (
	"context"
	"fmt"
	"log"
	"math/rand"
)

// Sender delivers one text message. It returns the provider's message id.
type Sender interface {
	Send(ctx context.Context, phone, body string) (string, error)
}

// MockSender simulates the gateway for local runs. SuccessRate is the
// fraction of sends that succeed; 0 means always succeed.
type MockSender struct {
	SuccessRate float64
}

func (m *MockSender) Send(ctx context.Context, phone, body string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	if m.SuccessRate > 0 && rand.Float64() >= m.SuccessRate {
		return "", fmt.Errorf("mock sending failed")
	}
	id := fmt.Sprintf("mock-%d", rand.Int63())
	log.Printf("📨 [MOCK SMS] to %s (%s): %s\n", phone, id, body)
	return id, nil
}
