package command

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"sync"
)

// Transport delivers one parsed command at a time and accepts zero or more
// pushed messages per handled command. Wire framing is the transport's
// concern; the dispatcher never sees raw bytes.
type Transport interface {
	// Receive blocks until the next command arrives. It returns io.EOF when
	// the peer has closed the stream.
	Receive() (*Command, error)

	// Push sends one outbound message. Safe for concurrent use.
	Push(msg any) error
}

// maxCommandBytes bounds one framed command line. Chunk payloads arrive
// base64-encoded inline, so lines can reach tens of megabytes.
const maxCommandBytes = 64 * 1024 * 1024

// StdioTransport frames commands as newline-delimited JSON over a reader
// and writer pair, the contract a host application uses to drive this
// companion process over its stdin/stdout.
type StdioTransport struct {
	scanner *bufio.Scanner
	writer  io.Writer
	readErr error
	mu      sync.Mutex
}

// NewStdioTransport creates a transport over the given streams.
func NewStdioTransport(r io.Reader, w io.Writer) *StdioTransport {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 64*1024), maxCommandBytes)

	return &StdioTransport{
		scanner: scanner,
		writer:  w,
	}
}

// Receive reads and parses the next command line. A scanner failure (broken
// read, line over maxCommandBytes) is unrecoverable because Scan returns
// false forever after; it is reported once and the stream then behaves as
// closed so the caller winds down instead of re-reading the same error.
func (t *StdioTransport) Receive() (*Command, error) {
	if t.readErr != nil {
		return nil, io.EOF
	}

	for t.scanner.Scan() {
		line := t.scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var cmd Command
		if err := json.Unmarshal(line, &cmd); err != nil {
			return nil, fmt.Errorf("malformed command: %w", err)
		}

		return &cmd, nil
	}

	if err := t.scanner.Err(); err != nil {
		t.readErr = err
		return nil, fmt.Errorf("command stream failed: %w", err)
	}

	return nil, io.EOF
}

// Push writes one message as a JSON line.
func (t *StdioTransport) Push(msg any) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to encode message: %w", err)
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := t.writer.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("failed to write message: %w", err)
	}

	return nil
}
