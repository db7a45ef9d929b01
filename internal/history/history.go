// Package history keeps an append only transcript of executed commands
package history

import (
	"bufio"
	"os"
	"sync"
	"time"

	"github.com/eternalApril/moonview/internal/core"
	"github.com/eternalApril/moonview/internal/resp"
	"github.com/eternalApril/moonview/internal/result"
	"go.uber.org/zap"
)

type fsyncStrategy int

const (
	fsyncAlways fsyncStrategy = iota + 1
	fsyncEverySec
	fsyncNo
)

// Entry is one recorded command and its reply
type Entry struct {
	Time       time.Time
	Connection string
	Command    string
	Reply      core.Value
}

// History writes entries to an append only file
type History struct {
	file     *os.File
	writer   *bufio.Writer
	filename string
	strategy fsyncStrategy

	entries chan []byte

	stopChan chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
	logger   *zap.Logger
}

// Open opens filename for appending and starts the background writer.
// strategy is one of always, everysec, no
func Open(filename string, strategy string, logger *zap.Logger) (*History, error) {
	// open file in Append mode, Create if not exists
	f, err := os.OpenFile(filename, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return nil, err
	}

	h := &History{
		file:     f,
		writer:   bufio.NewWriter(f),
		filename: filename,
		strategy: parseStrategy(strategy),
		entries:  make(chan []byte, 10000), // buffer for burst writes
		stopChan: make(chan struct{}),
		logger:   logger.Named("history"),
	}

	h.wg.Add(1)
	go h.listen()

	return h, nil
}

// Filename returns the path of the transcript
func (h *History) Filename() string {
	return h.filename
}

// Append queues e for writing. When the queue is full it blocks until the
// writer catches up. Entries appended after Close are dropped
func (h *History) Append(e Entry) {
	payload, err := resp.Serialize(encodeEntry(e))
	if err != nil {
		h.logger.Error("history encode error", zap.Error(err))
		return
	}

	select {
	case <-h.stopChan:
		return
	default:
	}

	select {
	case h.entries <- payload:
	case <-h.stopChan:
	}
}

// Observer records the reply of every command of a tree under connection.
// Raw commands are their own root, other requests hold one command node per
// backend round trip
func (h *History) Observer(connection string) result.Observer {
	record := func(cmd *result.Node, reply core.Value) {
		h.Append(Entry{
			Time:       time.Now(),
			Connection: connection,
			Command:    cmd.Text(),
			Reply:      reply,
		})
	}

	return result.ObserverFuncs{
		OnChildrenAdded: func(child *result.Node) {
			parent := child.Parent()
			if child.Kind() == result.KindCommand || !isCommand(parent) {
				return
			}
			// only the reply, nested containers are part of it
			if len(parent.Children()) != 1 {
				return
			}
			record(parent, child.Value())
		},
		OnUpdated: func(node *result.Node, value core.Value) {
			if isCommand(node) && node.Err() != nil {
				record(node, value)
			}
		},
	}
}

func isCommand(n *result.Node) bool {
	return n != nil && (n.Kind() == result.KindCommand || n.Kind() == result.KindRoot)
}

func (h *History) listen() {
	defer h.wg.Done()

	var tick <-chan time.Time
	if h.strategy == fsyncEverySec {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		tick = ticker.C
	}

	for {
		select {
		case p := <-h.entries:
			h.write(p)
			if h.strategy == fsyncAlways {
				h.sync()
			}

		case <-tick:
			h.sync()

		case <-h.stopChan:
			for {
				select {
				case p := <-h.entries:
					h.write(p)
				default:
					h.sync()
					return
				}
			}
		}
	}
}

func (h *History) write(p []byte) {
	if _, err := h.writer.Write(p); err != nil {
		h.logger.Error("history write error", zap.Error(err))
	}
}

// sync flushes the buffer and, unless the strategy is no, fsyncs the file
func (h *History) sync() {
	if err := h.writer.Flush(); err != nil {
		h.logger.Error("history flush error", zap.Error(err))
		return
	}
	if h.strategy == fsyncNo {
		return
	}
	if err := h.file.Sync(); err != nil {
		h.logger.Error("history fsync error", zap.Error(err))
	}
}

// Close writes the queued entries and closes the file
func (h *History) Close() error {
	h.stopOnce.Do(func() { close(h.stopChan) })

	h.wg.Wait() // wait for background routine to finish last flush
	return h.file.Close()
}

func parseStrategy(s string) fsyncStrategy {
	switch s {
	case "always":
		return fsyncAlways
	case "no":
		return fsyncNo
	default:
		return fsyncEverySec
	}
}
