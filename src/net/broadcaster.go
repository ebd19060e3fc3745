package net

import (
	"context"
)

// Broadcaster sends messages to every reachable node and delivers the messages
// of other nodes.
type Broadcaster interface {
	// Broadcast sends msg to the network. It does not deliver msg locally.
	Broadcast(ctx context.Context, msg *Message) error

	// Consumer returns the channel of messages received from other nodes.
	Consumer() <-chan *Message

	// LocalAddr is the address other nodes use to reach this one.
	LocalAddr() string

	// Close permanently closes the broadcaster, stopping any associated
	// goroutines and freeing other resources.
	Close() error
}
