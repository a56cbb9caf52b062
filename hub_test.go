package godaq

import (
	"encoding/binary"
	"math"
	"testing"
)

func float32Payload(values ...float32) []byte {
	raw := make([]byte, 0, 4*len(values))
	for _, v := range values {
		raw = binary.LittleEndian.AppendUint32(raw, math.Float32bits(v))
	}
	return raw
}

func TestParseHubMessage(t *testing.T) {
	ev, err := parseHubMessage([][]byte{[]byte("3"), float32Payload(0.5, -1, 42)})
	if err != nil {
		t.Fatalf("parseHubMessage failed: %v", err)
	}
	if ev.Channel != 3 {
		t.Errorf("channel = %d, want 3", ev.Channel)
	}
	want := []float64{0.5, -1, 42}
	if len(ev.Samples) != len(want) {
		t.Fatalf("got %d samples, want %d", len(ev.Samples), len(want))
	}
	for i, v := range want {
		if ev.Samples[i] != v {
			t.Errorf("sample %d = %g, want %g", i, ev.Samples[i], v)
		}
	}

	bad := [][][]byte{
		{[]byte("3")},                                   // one frame
		{[]byte("3"), float32Payload(1), []byte("x")},   // three frames
		{[]byte("ch3"), float32Payload(1)},              // non-numeric channel
		{[]byte("3"), {}},                               // empty payload
		{[]byte("3"), {0x01, 0x02, 0x03}},               // not a multiple of 4
	}
	for i, frames := range bad {
		if _, err := parseHubMessage(frames); err == nil {
			t.Errorf("malformed message %d parsed without error", i)
		}
	}
}

func TestInitHubSDK(t *testing.T) {
	TeardownHubSDK()
	defer TeardownHubSDK()

	if _, err := NewHub("tcp://127.0.0.1:6110"); err == nil {
		t.Fatalf("NewHub succeeded before InitHubSDK")
	}

	if err := InitHubSDK(""); err != nil {
		t.Fatalf("InitHubSDK with default path failed: %v", err)
	}
	if err := InitHubSDK(""); err != nil {
		t.Errorf("repeated InitHubSDK with the same path failed: %v", err)
	}
	if err := InitHubSDK("/somewhere/else"); err == nil {
		t.Errorf("InitHubSDK with a different path succeeded, want error")
	}

	TeardownHubSDK()
	if err := InitHubSDK("/does/not/exist"); err == nil {
		t.Errorf("InitHubSDK with a missing path succeeded, want error")
	}
}

func TestHubChannels(t *testing.T) {
	TeardownHubSDK()
	defer TeardownHubSDK()
	if err := InitHubSDK(""); err != nil {
		t.Fatalf("InitHubSDK: %v", err)
	}

	// The endpoint is not required to have a publisher behind it: ZMQ connects
	// lazily, so the hub can be constructed and closed without a companion.
	hub, err := NewHub("tcp://127.0.0.1:6110")
	if err != nil {
		t.Fatalf("NewHub: %v", err)
	}
	defer hub.Close()

	channels := hub.Channels()
	if len(channels) != HubChannelCount {
		t.Fatalf("got %d channels, want %d", len(channels), HubChannelCount)
	}
	for i, ch := range channels {
		if ch != i {
			t.Errorf("channel %d = %d, want %d", i, ch, i)
		}
	}

	id, err := hub.Subscribe(func(StreamEvent) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	if err = hub.Unsubscribe(id); err != nil {
		t.Errorf("Unsubscribe: %v", err)
	}
	if err = hub.Unsubscribe(id); err == nil {
		t.Errorf("second Unsubscribe succeeded, want error")
	}

	if err = hub.Close(); err != nil {
		t.Errorf("Close returned %v", err)
	}
	if err = hub.Close(); err != nil {
		t.Errorf("second Close returned %v", err)
	}
	if _, err = hub.Subscribe(func(StreamEvent) {}); err == nil {
		t.Errorf("Subscribe after Close succeeded, want error")
	}
}
