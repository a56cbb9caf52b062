package daqdb

import (
	"testing"
	"time"

	"github.com/oklog/ulid/v2"
)

func TestNewSessionID(t *testing.T) {
	a := NewSessionID()
	b := NewSessionID()
	if a == b {
		t.Errorf("two session IDs are identical: %s", a)
	}
	id, err := ulid.Parse(a)
	if err != nil {
		t.Fatalf("NewSessionID minted an unparseable ID %q: %v", a, err)
	}
	minted := ulid.Time(id.Time())
	if d := time.Since(minted); d < 0 || d > time.Minute {
		t.Errorf("session ID timestamp is %v old", d)
	}
}

func TestDummyConnection(t *testing.T) {
	db := Dummy()
	if db.IsConnected() {
		t.Errorf("Dummy connection claims to be connected")
	}
	// Recording and waiting must both be harmless on a dummy.
	db.RecordSession(&SessionMessage{ID: NewSessionID(), DeviceKind: "simulated"})
	db.RecordSession(nil)
	db.Wait()

	var nildb *Connection
	if nildb.IsConnected() {
		t.Errorf("nil connection claims to be connected")
	}
}
