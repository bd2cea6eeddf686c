package daemon

import (
	"errors"
	"io"
	"sync"
)

// subscriberQueueCapacity bounds each serial subscriber's pending byte
// chunks. A subscriber that falls behind is detached rather than
// allowed to block the single reader.
const subscriberQueueCapacity = 64

// SerialAccess is a subscriber's role on the hub.
type SerialAccess int

const (
	// AccessWatch is a read-only observer.
	AccessWatch SerialAccess = iota
	// AccessInteractive may also write guest input. At most one
	// interactive subscriber exists at a time.
	AccessInteractive
)

type subscriber struct {
	id     uint64
	access SerialAccess
	ch     chan []byte
}

// SerialHub fans guest serial output out to N subscribers and tracks
// which one, if any, holds write access to guest input. Exactly one
// reader goroutine feeds it via Broadcast; the log write happens
// before the broadcast so readers of serial.log never trail a live
// subscriber.
type SerialHub struct {
	mu          sync.Mutex
	subs        map[uint64]*subscriber
	nextID      uint64
	interactive uint64 // 0 means none held
	log         io.Writer
}

// NewSerialHub constructs a hub that durably logs every broadcast
// chunk to log before fanning it out.
func NewSerialHub(log io.Writer) *SerialHub {
	return &SerialHub{subs: make(map[uint64]*subscriber), log: log}
}

// Attach registers a new subscriber. Requesting AccessInteractive while
// one is already held fails.
func (h *SerialHub) Attach(access SerialAccess) (id uint64, ch <-chan []byte, err error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if access == AccessInteractive && h.interactive != 0 {
		return 0, nil, errInteractiveHeld
	}

	h.nextID++
	id = h.nextID
	sub := &subscriber{id: id, access: access, ch: make(chan []byte, subscriberQueueCapacity)}
	h.subs[id] = sub
	if access == AccessInteractive {
		h.interactive = id
	}
	return id, sub.ch, nil
}

// Detach removes a subscriber.
func (h *SerialHub) Detach(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detachLocked(id)
}

func (h *SerialHub) detachLocked(id uint64) {
	if sub, ok := h.subs[id]; ok {
		close(sub.ch)
		delete(h.subs, id)
	}
	if h.interactive == id {
		h.interactive = 0
	}
}

// CanWriteInput reports whether id currently holds the interactive role.
func (h *SerialHub) CanWriteInput(id uint64) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.interactive == id
}

// Broadcast writes chunk to the durable log, then fans it out to every
// subscriber. A subscriber whose queue is full is detached rather than
// allowed to stall the reader.
func (h *SerialHub) Broadcast(chunk []byte) {
	if h.log != nil {
		_, _ = h.log.Write(chunk)
	}

	cp := make([]byte, len(chunk))
	copy(cp, chunk)

	h.mu.Lock()
	defer h.mu.Unlock()
	for id, sub := range h.subs {
		select {
		case sub.ch <- cp:
		default:
			h.detachLocked(id)
		}
	}
}

// Pump reads from r until it returns an error, broadcasting each chunk
// read. Intended to run on the daemon's single serial-reader goroutine.
func (h *SerialHub) Pump(r io.Reader) error {
	buf := make([]byte, 4096)
	for {
		n, err := r.Read(buf)
		if n > 0 {
			h.Broadcast(buf[:n])
		}
		if err != nil {
			return err
		}
	}
}

var errInteractiveHeld = errors.New("an interactive serial subscriber is already attached")
