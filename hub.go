package godaq

import (
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"sync"
	"time"

	"github.com/google/uuid"
	zmq "github.com/pebbe/zmq4"
)

// HubChannelCount is the number of sensor channels the armband hub exposes.
const HubChannelCount = 8

// hubRecvTimeout bounds each socket receive so the ingest loop can notice a
// Close request between messages.
const hubRecvTimeout = 100 * time.Millisecond

// Hub is a StreamBackend connected to the armband vendor's companion
// software, which must already be running. The companion publishes one
// two-frame ZMQ message per sensor event: an ASCII channel number, then the
// samples as little-endian float32. Hub subscribes to that stream and fans
// each event out to the registered callbacks from a single ingest goroutine.
type Hub struct {
	endpoint string

	subsLock sync.Mutex
	subs     map[uuid.UUID]func(StreamEvent)

	done chan struct{}
	wg   sync.WaitGroup

	closeOnce sync.Once
}

// NewHub connects a subscriber socket to the companion software's publish
// endpoint, e.g. "tcp://127.0.0.1:6110". InitHubSDK must have been called.
func NewHub(endpoint string) (*Hub, error) {
	if !hubSDKInitialized() {
		return nil, fmt.Errorf("hub SDK not initialized: call InitHubSDK first")
	}
	sock, err := zmq.NewSocket(zmq.SUB)
	if err != nil {
		return nil, fmt.Errorf("could not create SUB socket: %v", err)
	}
	if err = sock.Connect(endpoint); err != nil {
		sock.Close()
		return nil, fmt.Errorf("could not connect SUB socket to %s: %v", endpoint, err)
	}
	if err = sock.SetSubscribe(""); err != nil {
		sock.Close()
		return nil, err
	}
	if err = sock.SetRcvtimeo(hubRecvTimeout); err != nil {
		sock.Close()
		return nil, err
	}

	h := &Hub{
		endpoint: endpoint,
		subs:     make(map[uuid.UUID]func(StreamEvent)),
		done:     make(chan struct{}),
	}
	h.wg.Add(1)
	go h.ingest(sock)
	return h, nil
}

// ingest owns the socket: ZMQ sockets are not safe for concurrent use, so
// all receives and the final close happen on this goroutine.
func (h *Hub) ingest(sock *zmq.Socket) {
	defer h.wg.Done()
	defer sock.Close()
	for {
		select {
		case <-h.done:
			return
		default:
		}
		frames, err := sock.RecvMessageBytes(0)
		if err != nil {
			// Receive timeouts are how we poll the done channel.
			continue
		}
		ev, err := parseHubMessage(frames)
		if err != nil {
			ProblemLogger.Printf("armband hub sent an unparseable message: %v", err)
			continue
		}
		h.subsLock.Lock()
		for _, fn := range h.subs {
			fn(ev)
		}
		h.subsLock.Unlock()
	}
}

// parseHubMessage decodes one published event.
func parseHubMessage(frames [][]byte) (StreamEvent, error) {
	var ev StreamEvent
	if len(frames) != 2 {
		return ev, fmt.Errorf("message has %d frames, want 2", len(frames))
	}
	channel, err := strconv.Atoi(string(frames[0]))
	if err != nil {
		return ev, fmt.Errorf("channel frame %q is not a number", frames[0])
	}
	payload := frames[1]
	if len(payload) == 0 || len(payload)%4 != 0 {
		return ev, fmt.Errorf("payload of %d bytes is not a float32 array", len(payload))
	}
	samples := make([]float64, len(payload)/4)
	for i := range samples {
		bits := binary.LittleEndian.Uint32(payload[4*i:])
		samples[i] = float64(math.Float32frombits(bits))
	}
	ev.Channel = channel
	ev.Samples = samples
	return ev, nil
}

// Channels returns the hub's fixed sensor set, numbered 0 through 7.
func (h *Hub) Channels() []int {
	channels := make([]int, HubChannelCount)
	for i := range channels {
		channels[i] = i
	}
	return channels
}

// Subscribe registers a callback for every incoming event.
func (h *Hub) Subscribe(fn func(StreamEvent)) (uuid.UUID, error) {
	select {
	case <-h.done:
		return uuid.Nil, fmt.Errorf("hub connection is closed")
	default:
	}
	id := uuid.New()
	h.subsLock.Lock()
	h.subs[id] = fn
	h.subsLock.Unlock()
	return id, nil
}

// Unsubscribe removes a callback. The callback is not invoked after
// Unsubscribe returns, because removal takes the same lock the ingest loop
// dispatches under.
func (h *Hub) Unsubscribe(id uuid.UUID) error {
	h.subsLock.Lock()
	defer h.subsLock.Unlock()
	if _, ok := h.subs[id]; !ok {
		return fmt.Errorf("no subscription %s", id)
	}
	delete(h.subs, id)
	return nil
}

// Close stops the ingest loop and closes the socket. Safe to call twice.
func (h *Hub) Close() error {
	h.closeOnce.Do(func() {
		close(h.done)
		h.wg.Wait()
	})
	return nil
}
