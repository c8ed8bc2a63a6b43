// Package delivery abstracts outbound OTP message transport (SMS, WhatsApp) behind one
// capability interface. It is stateless and holds no retry logic: retries are a caller
// decision because blind retries would bypass rate limiting.
package delivery

import (
	"context"
	"errors"
	"fmt"
	"regexp"
)

// Channel identifies an outbound message channel.
type Channel string

const (
	ChannelSMS      Channel = "SMS"
	ChannelWhatsApp Channel = "WHATSAPP"
)

// Valid reports whether the channel is a known value.
func (c Channel) Valid() bool {
	return c == ChannelSMS || c == ChannelWhatsApp
}

// ErrUnsupportedChannel is returned when a dispatcher has no client for the channel.
var (
	ErrUnsupportedChannel = errors.New("delivery: unsupported channel")

	ErrInvalidDestination = errors.New("delivery: destination is not E.164")
)

// e164 matches canonical international phone numbers (+ and 8-15 digits).
var e164 = regexp.MustCompile(`^\+[1-9][0-9]{7,14}$`)

// ValidateDestination checks destination format for the given channel.
// Both SMS and WhatsApp require E.164 phone numbers.
func ValidateDestination(destination string, channel Channel) error {
	if !channel.Valid() {
		return ErrUnsupportedChannel
	}
	if !e164.MatchString(destination) {
		return fmt.Errorf("%w: %q", ErrInvalidDestination, destination)
	}
	return nil
}

// SendError wraps a send failure and records whether it is worth retrying later.
type SendError struct {
	Transient bool
	Err       error
}

func (e *SendError) Error() string { return e.Err.Error() }
func (e *SendError) Unwrap() error { return e.Err }

// Transient wraps err as a retryable delivery failure (timeouts, 5xx).
func Transient(err error) error { return &SendError{Transient: true, Err: err} }

// Permanent wraps err as a non-retryable delivery failure (bad credentials, 4xx).
func Permanent(err error) error { return &SendError{Transient: false, Err: err} }

// IsTransient reports whether err is a transient SendError.
func IsTransient(err error) bool {
	var se *SendError
	return errors.As(err, &se) && se.Transient
}

// Dispatcher sends one message to a destination over a channel and returns the
// provider's delivery ID. Implementations must respect ctx cancellation; a timeout
// must surface as a transient SendError.
type Dispatcher interface {
	Send(ctx context.Context, destination string, channel Channel, body string) (string, error)
}

// Router dispatches to a per-channel client. Channels without a configured client
// fail with ErrUnsupportedChannel (permanent).
type Router struct {
	SMS      Dispatcher
	WhatsApp Dispatcher
}

// Send routes the message to the client configured for channel.
func (r *Router) Send(ctx context.Context, destination string, channel Channel, body string) (string, error) {
	var d Dispatcher
	switch channel {
	case ChannelSMS:
		d = r.SMS
	case ChannelWhatsApp:
		d = r.WhatsApp
	}
	if d == nil {
		return "", Permanent(fmt.Errorf("%w: %s", ErrUnsupportedChannel, channel))
	}
	return d.Send(ctx, destination, channel, body)
}
