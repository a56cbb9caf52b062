package daqdb

import (
	"math/rand"
	"time"

	"github.com/oklog/ulid/v2"
)

// SessionMessage is the information stored in the sessions table, one row per
// acquisition session.
type SessionMessage struct {
	ID             string // a ULID, so rows sort by creation time
	Hostname       string
	DeviceKind     string // "task", "armband", "ring", "pin", "socket", "simulated"
	Nchannels      int
	Rate           float64
	SamplesPerRead int
	BlocksRead     int
	Aborted        bool // true when the session ended on an error
	Start          time.Time
	End            time.Time
}

// NewSessionID mints a ULID for a session starting now.
func NewSessionID() string {
	entropy := ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0)
	return ulid.MustNew(ulid.Timestamp(time.Now()), entropy).String()
}
