package bridge

import (
	"time"

	"github.com/robotalks/aicupg/pkg/uart/comm"
)

// Option configures a Bridge.
type Option func(*Bridge)

// WithConfig replaces the session config.
func WithConfig(conf comm.Config) Option {
	return func(b *Bridge) {
		b.conf = conf
	}
}

// WithAckTimeout sets how long a sent frame waits for ACK.
func WithAckTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.conf.AckTimeout = d
	}
}

// WithRecvTimeout sets the longest gap between bytes of a frame.
func WithRecvTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		b.conf.RecvTimeout = d
	}
}

// WithRetries sets the retry ceiling per frame.
func WithRetries(n int) Option {
	return func(b *Bridge) {
		b.conf.MaxRetries = n
	}
}

// WithHandshakeInterval sets the SIG_A period.
func WithHandshakeInterval(d time.Duration) Option {
	return func(b *Bridge) {
		b.conf.HandshakeInterval = d
	}
}

// WithStrict aborts on unexpected block numbers instead of NAK.
func WithStrict(strict bool) Option {
	return func(b *Bridge) {
		b.conf.Strict = strict
	}
}

// WithFullHandshake restarts the handshake cadence on every Reset.
func WithFullHandshake(full bool) Option {
	return func(b *Bridge) {
		b.conf.FullHandshake = full
	}
}

// WithScratch sets the scratch buffer size and alignment.
func WithScratch(size, align int) Option {
	return func(b *Bridge) {
		b.scratchSize, b.scratchAlign = size, align
	}
}

// WithHandler sets the completion handler.
func WithHandler(h Handler) Option {
	return func(b *Bridge) {
		b.handler = h
	}
}
