// Package bus is a small in-process topic bus. Services publish state and
// events on it; retained messages let late subscribers catch up on the last
// known camera, storage and question-index state.
package bus

import (
	"strings"
	"sync"
)

// Wildcards (MQTT semantics): "+" matches exactly one level, "#" matches any
// number of trailing levels, including none.
const (
	SingleWild = "+"
	MultiWild  = "#"
)

// -----------------------------------------------------------------------------
// Topics
// -----------------------------------------------------------------------------

// Topic is a sequence of levels.
type Topic []string

// T builds a topic from levels.
func T(levels ...string) Topic { return Topic(levels) }

// String joins the levels with '/'.
func (t Topic) String() string { return strings.Join(t, "/") }

// Append returns a new topic with extra levels; t is not modified.
func (t Topic) Append(levels ...string) Topic {
	out := make(Topic, 0, len(t)+len(levels))
	out = append(out, t...)
	return append(out, levels...)
}

// Match reports whether the concrete topic matches pattern.
func Match(pattern, topic Topic) bool {
	for i, p := range pattern {
		if p == MultiWild {
			return true
		}
		if i >= len(topic) {
			return false
		}
		if p != SingleWild && p != topic[i] {
			return false
		}
	}
	return len(pattern) == len(topic)
}

// -----------------------------------------------------------------------------
// Message
// -----------------------------------------------------------------------------

type Message struct {
	Topic    Topic
	Payload  any
	Retained bool
}

// NewMessage is a convenience constructor.
func (b *Bus) NewMessage(t Topic, payload any, retained bool) *Message {
	return &Message{Topic: t, Payload: payload, Retained: retained}
}

// -----------------------------------------------------------------------------
// Subscription
// -----------------------------------------------------------------------------

type Subscription struct {
	topic Topic
	ch    chan *Message
	conn  *Connection
}

func (s *Subscription) Topic() Topic             { return s.topic }
func (s *Subscription) Channel() <-chan *Message { return s.ch }
func (s *Subscription) Unsubscribe()             { s.conn.Unsubscribe(s) }

// deliver never blocks the publisher: when the queue is full the oldest
// message is dropped.
func (s *Subscription) deliver(m *Message) {
	for {
		select {
		case s.ch <- m:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

// -----------------------------------------------------------------------------
// Bus
// -----------------------------------------------------------------------------

type node struct {
	children map[string]*node
	subs     []*Subscription
}

type Bus struct {
	mu       sync.Mutex
	root     *node
	retained map[string]*Message
	qLen     int
}

// NewBus creates a new bus with the given subscription queue length.
func NewBus(queueLen int) *Bus {
	if queueLen <= 0 {
		queueLen = 8
	}
	return &Bus{
		root:     &node{},
		retained: make(map[string]*Message),
		qLen:     queueLen,
	}
}

func (b *Bus) addSubscription(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	for _, tok := range sub.topic {
		if n.children == nil {
			n.children = make(map[string]*node)
		}
		child, ok := n.children[tok]
		if !ok {
			child = &node{}
			n.children[tok] = child
		}
		n = child
	}
	n.subs = append(n.subs, sub)

	for _, m := range b.retained {
		if Match(sub.topic, m.Topic) {
			sub.deliver(m)
		}
	}
}

// collect walks every subscription pattern that can match topic.
func collect(n *node, topic Topic, out []*Subscription) []*Subscription {
	if n == nil {
		return out
	}
	if hash := n.children[MultiWild]; hash != nil {
		out = append(out, hash.subs...)
	}
	if len(topic) == 0 {
		return append(out, n.subs...)
	}
	out = collect(n.children[topic[0]], topic[1:], out)
	return collect(n.children[SingleWild], topic[1:], out)
}

// Publish delivers a message to all matching subscribers. A retained message
// with a nil payload clears the retained slot.
func (b *Bus) Publish(msg *Message) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if msg.Retained {
		key := msg.Topic.String()
		if msg.Payload == nil {
			delete(b.retained, key)
		} else {
			b.retained[key] = msg
		}
	}
	for _, sub := range collect(b.root, msg.Topic, nil) {
		sub.deliver(msg)
	}
}

// Retained returns the retained message for an exact topic, if any.
func (b *Bus) Retained(t Topic) (*Message, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	m, ok := b.retained[t.String()]
	return m, ok
}

func (b *Bus) unsubscribe(sub *Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()

	n := b.root
	stack := make([]*node, 0, len(sub.topic))
	for _, tok := range sub.topic {
		child, ok := n.children[tok]
		if !ok {
			return
		}
		stack = append(stack, n)
		n = child
	}
	for i, s := range n.subs {
		if s == sub {
			n.subs = append(n.subs[:i], n.subs[i+1:]...)
			break
		}
	}
	// Prune empty nodes bottom-up.
	for i := len(sub.topic) - 1; i >= 0; i-- {
		parent, key := stack[i], sub.topic[i]
		child := parent.children[key]
		if len(child.subs) != 0 || len(child.children) != 0 {
			break
		}
		delete(parent.children, key)
	}
}

// -----------------------------------------------------------------------------
// Connection
// -----------------------------------------------------------------------------

type Connection struct {
	bus  *Bus
	id   string
	mu   sync.Mutex
	subs []*Subscription
}

// NewConnection creates a new connection bound to this bus.
func (b *Bus) NewConnection(id string) *Connection {
	return &Connection{bus: b, id: id}
}

func (c *Connection) ID() string { return c.id }

// NewMessage mirrors Bus.NewMessage for callers that only hold a connection.
func (c *Connection) NewMessage(t Topic, payload any, retained bool) *Message {
	return c.bus.NewMessage(t, payload, retained)
}

// Publish sends a message via the bus.
func (c *Connection) Publish(msg *Message) { c.bus.Publish(msg) }

// Subscribe registers a subscription owned by this connection.
func (c *Connection) Subscribe(topic Topic) *Subscription {
	sub := &Subscription{
		topic: append(Topic(nil), topic...),
		ch:    make(chan *Message, c.bus.qLen),
		conn:  c,
	}
	c.mu.Lock()
	c.subs = append(c.subs, sub)
	c.mu.Unlock()
	c.bus.addSubscription(sub)
	return sub
}

// Unsubscribe removes a subscription owned by this connection and closes its channel.
func (c *Connection) Unsubscribe(sub *Subscription) {
	c.mu.Lock()
	found := false
	for i, s := range c.subs {
		if s == sub {
			c.subs = append(c.subs[:i], c.subs[i+1:]...)
			found = true
			break
		}
	}
	c.mu.Unlock()
	if !found {
		return
	}
	c.bus.unsubscribe(sub)
	close(sub.ch)
}

// Disconnect closes all subscriptions.
func (c *Connection) Disconnect() {
	c.mu.Lock()
	subs := c.subs
	c.subs = nil
	c.mu.Unlock()

	for _, sub := range subs {
		c.bus.unsubscribe(sub)
		close(sub.ch)
	}
}
