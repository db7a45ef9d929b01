package server

import (
	"net"
	"sync"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/resp"
)

// Peer represents a connected client.
// It wraps a network connection and provides synchronized methods for reading and writing RESP-encoded data
type Peer struct {
	conn   net.Conn
	reader *resp.Decoder
	writer *resp.Encoder
	mu     sync.Mutex
}

// NewPeer initializes a new client peer from a network connection
func NewPeer(conn net.Conn) *Peer {
	return &Peer{
		conn:   conn,
		reader: resp.NewDecoder(conn),
		writer: resp.NewEncoder(conn),
	}
}

// Send encodes a value into the output buffer
func (p *Peer) Send(v core.Value) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Write(v)
}

// ReadCommand reads the next request and returns its arguments
func (p *Peer) ReadCommand() ([]string, error) {
	v, err := p.reader.Read()
	if err != nil {
		return nil, err
	}
	if v.Type != core.TypeArray {
		return nil, errInvalidRequest
	}

	argv := make([]string, 0, len(v.Array))
	for _, el := range v.Array {
		s, ok := el.AsString()
		if !ok || el.Type == core.TypeError {
			return nil, errInvalidRequest
		}
		argv = append(argv, s)
	}
	return argv, nil
}

// Close terminates the underlying network connection
func (p *Peer) Close() error {
	return p.conn.Close()
}

// Flush sends all buffered data to the client
func (p *Peer) Flush() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.writer.Flush()
}

// InputBuffered returns the number of bytes that can be read from the current buffer
func (p *Peer) InputBuffered() int {
	return p.reader.Buffered()
}

// RemoteAddr returns the address of the client
func (p *Peer) RemoteAddr() string {
	return p.conn.RemoteAddr().String()
}
