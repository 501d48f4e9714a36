// Package notify delivers outbound messages to users.
package notify

import (
	"context"
	"net/mail"
)

// Message is a single outbound email. Text and HTML are alternative bodies;
// either may be empty.
type Message struct {
	To      mail.Address
	Subject string
	Text    string
	HTML    string
}

// Sink delivers a message. A nil error means the provider accepted it.
type Sink interface {
	Send(ctx context.Context, msg Message) error
}
