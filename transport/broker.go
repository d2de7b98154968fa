package transport

import (
	"context"
	"fmt"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Sender delivers a raw message to its To address.
type Sender interface {
	Send(ctx context.Context, msg *Raw) error
}

// Mailbox is one agent's receive side.
type Mailbox interface {
	// Receive blocks until a message arrives, the timeout elapses
	// (ErrReceiveTimeout), or the context is done.
	Receive(ctx context.Context, timeout time.Duration) (*Raw, error)
	Address() string
}

// Broker is an in-process message carrier: each registered address gets a
// buffered mailbox, and Send routes by the To address. Messages to unknown
// addresses are dropped with a log line, matching carrier semantics where
// delivery is best-effort.
type Broker struct {
	mu     sync.RWMutex
	boxes  map[string]*brokerMailbox
	buffer int
	logger *zap.Logger
}

// NewBroker builds a broker whose mailboxes buffer up to buffer messages.
func NewBroker(buffer int, logger *zap.Logger) *Broker {
	if buffer <= 0 {
		buffer = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Broker{
		boxes:  make(map[string]*brokerMailbox),
		buffer: buffer,
		logger: logger,
	}
}

var _ Sender = (*Broker)(nil)

// Register creates (or returns) the mailbox for an address.
func (b *Broker) Register(address string) Mailbox {
	b.mu.Lock()
	defer b.mu.Unlock()
	if box, ok := b.boxes[address]; ok {
		return box
	}
	box := &brokerMailbox{
		address: address,
		ch:      make(chan *Raw, b.buffer),
	}
	b.boxes[address] = box
	return box
}

// Send routes msg to the mailbox registered for msg.To. A full mailbox is a
// delivery failure; an unknown address is a silent drop.
func (b *Broker) Send(ctx context.Context, msg *Raw) error {
	b.mu.RLock()
	box, ok := b.boxes[msg.To]
	b.mu.RUnlock()
	if !ok {
		b.logger.Debug("dropping message for unregistered address",
			zap.String("to", msg.To), zap.String("sender", msg.Sender))
		return nil
	}
	select {
	case box.ch <- msg:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	default:
		return fmt.Errorf("transport: mailbox %s full", msg.To)
	}
}

type brokerMailbox struct {
	address string
	ch      chan *Raw
}

func (m *brokerMailbox) Address() string { return m.address }

func (m *brokerMailbox) Receive(ctx context.Context, timeout time.Duration) (*Raw, error) {
	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case msg := <-m.ch:
		return msg, nil
	case <-timer.C:
		return nil, ErrReceiveTimeout
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
