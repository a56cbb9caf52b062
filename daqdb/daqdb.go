// Package daqdb records acquisition sessions in a ClickHouse database, when
// one is reachable. Recording is strictly best-effort: a missing or broken
// database never blocks or fails an acquisition.
package daqdb

import (
	"context"
	"fmt"
	"os"
	"sync"

	"github.com/ClickHouse/clickhouse-go/v2"
)

const databaseName = "godaq" // official SQL name of the database

// Connection wraps one ClickHouse connection plus the channel the recording
// goroutine drains. All inserts happen on that goroutine.
type Connection struct {
	conn       clickhouse.Conn
	err        error
	sessionmsg chan *SessionMessage
	sync.WaitGroup
}

// IsConnected reports whether the database can accept inserts.
func (db *Connection) IsConnected() bool {
	return (db != nil) && (db.conn != nil) && (db.err == nil)
}

// PingServer checks that a ClickHouse server is reachable with the
// credentials in the environment.
func PingServer() error {
	db := createConnection()
	if !db.IsConnected() {
		return fmt.Errorf("database is not connected: %v", db.err)
	}
	v, err := db.conn.ServerVersion()
	if err != nil {
		return err
	}
	fmt.Printf("ClickHouse server is alive. Version:\n%s\n", v)
	return db.conn.Close()
}

// Start opens the database connection and launches the recording goroutine,
// which runs until abort is closed. If the server is unreachable, the
// returned Connection silently drops all messages.
func Start(abort <-chan struct{}) *Connection {
	db := createConnection()
	go db.handleConnection(abort)
	return db
}

// Dummy returns a Connection that records nothing, for callers that want the
// recording calls to be unconditional.
func Dummy() *Connection {
	return &Connection{}
}

func createConnection() *Connection {
	db := &Connection{}
	db.Add(1)
	auth := clickhouse.Auth{
		Database: databaseName,
		Username: os.Getenv("GODAQ_DB_USER"),
		Password: os.Getenv("GODAQ_DB_PASSWORD"),
	}
	addr := os.Getenv("GODAQ_DB_ADDR")
	if addr == "" {
		addr = "localhost:9000"
	}
	opt := clickhouse.Options{
		Addr: []string{addr},
		Auth: auth,
	}
	conn, err := clickhouse.Open(&opt)
	if err != nil {
		db.err = err
		return db
	}
	if err = conn.Ping(context.Background()); err != nil {
		db.err = err
		return db
	}
	db.conn = conn
	db.sessionmsg = make(chan *SessionMessage)
	return db
}

func (db *Connection) handleConnection(abort <-chan struct{}) {
	defer db.Done()
	if !db.IsConnected() {
		<-abort
		return
	}
	for {
		select {
		case <-abort:
			db.conn.Close()
			return
		case msg := <-db.sessionmsg:
			db.insertSession(msg)
		}
	}
}

// RecordSession hands a session message to the recording goroutine. It
// blocks until the select in handleConnection accepts the message, so a
// session is guaranteed to be queued for insertion before the caller shuts
// the connection down. Without a connection it is a no-op.
func (db *Connection) RecordSession(msg *SessionMessage) {
	if !db.IsConnected() || msg == nil {
		return
	}
	db.sessionmsg <- msg
}

func (db *Connection) insertSession(m *SessionMessage) {
	ctx := context.Background()
	const nowait = false
	formattedStart := m.Start.Format("2006-01-02 15:04:05.000000")
	formattedEnd := m.End.Format("2006-01-02 15:04:05.000000")
	if err := db.conn.AsyncInsert(ctx, `INSERT INTO sessions VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`, nowait,
		m.ID, m.Hostname, m.DeviceKind, m.Nchannels, m.Rate, m.SamplesPerRead,
		m.BlocksRead, m.Aborted, formattedStart, formattedEnd,
	); err != nil {
		fmt.Println("Error raised on AsyncInsert into sessions ", err)
		db.err = err
	}
}
