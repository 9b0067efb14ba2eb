package channel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
)

// memTransport is one end of an in-memory pipe.
type memTransport struct {
	in   <-chan Message
	out  chan<- Message
	done chan struct{}
	once *sync.Once
}

// Pipe returns two connected in-memory transports. Closing either end
// closes both.
func Pipe() (Transport, Transport) {
	ab := make(chan Message, 64)
	ba := make(chan Message, 64)
	done := make(chan struct{})
	once := &sync.Once{}
	a := &memTransport{in: ba, out: ab, done: done, once: once}
	b := &memTransport{in: ab, out: ba, done: done, once: once}
	return a, b
}

func (t *memTransport) Send(m Message) error {
	select {
	case <-t.done:
		return ErrClosed
	default:
	}
	select {
	case t.out <- m:
		return nil
	case <-t.done:
		return ErrClosed
	}
}

func (t *memTransport) Recv() (Message, error) {
	select {
	case m := <-t.in:
		return m, nil
	case <-t.done:
		// Drain what the peer sent before closing.
		select {
		case m := <-t.in:
			return m, nil
		default:
			return Message{}, io.EOF
		}
	}
}

func (t *memTransport) Close() error {
	t.once.Do(func() { close(t.done) })
	return nil
}

// FrameError is a malformed frame on a stream transport. The stream stays
// usable.
type FrameError struct {
	Reason string
	Err    error
}

func (e *FrameError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", ErrFrame, e.Reason, e.Err)
	}
	return fmt.Sprintf("%s: %s", ErrFrame, e.Reason)
}

func (e *FrameError) Unwrap() error {
	return ErrFrame
}

// StreamTransport frames JSON envelopes with Content-Length headers over a
// byte stream such as stdio.
type StreamTransport struct {
	reader *bufio.Reader
	writer io.Writer
	closer io.Closer

	mu     sync.Mutex
	closed atomic.Bool
}

// NewStreamTransport creates a transport reading from r and writing to w.
// c, if non-nil, is closed by Close.
func NewStreamTransport(r io.Reader, w io.Writer, c io.Closer) *StreamTransport {
	return &StreamTransport{
		reader: bufio.NewReaderSize(r, 64*1024),
		writer: w,
		closer: c,
	}
}

// Send writes one framed message.
func (t *StreamTransport) Send(m Message) error {
	if t.closed.Load() {
		return ErrClosed
	}

	data, err := json.Marshal(m)
	if err != nil {
		return fmt.Errorf("marshal message: %w", err)
	}
	header := fmt.Sprintf("Content-Length: %d\r\n\r\n", len(data))

	t.mu.Lock()
	defer t.mu.Unlock()

	if _, err := io.WriteString(t.writer, header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	if _, err := t.writer.Write(data); err != nil {
		return fmt.Errorf("write body: %w", err)
	}
	return nil
}

// Recv reads one framed message.
func (t *StreamTransport) Recv() (Message, error) {
	contentLength := -1
	for {
		line, err := t.reader.ReadString('\n')
		if err != nil {
			if t.closed.Load() {
				return Message{}, ErrClosed
			}
			if err == io.ErrUnexpectedEOF || (err == io.EOF && line != "") {
				return Message{}, io.EOF
			}
			return Message{}, err
		}
		line = strings.TrimSpace(line)
		if line == "" {
			break
		}
		name, value, ok := strings.Cut(line, ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(name), "content-length") {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(value))
		if err != nil || n < 0 {
			return Message{}, &FrameError{Reason: "bad Content-Length " + strconv.Quote(value), Err: err}
		}
		contentLength = n
	}

	if contentLength < 0 {
		return Message{}, &FrameError{Reason: "missing Content-Length header"}
	}

	body := make([]byte, contentLength)
	if _, err := io.ReadFull(t.reader, body); err != nil {
		if err == io.ErrUnexpectedEOF {
			return Message{}, io.EOF
		}
		return Message{}, fmt.Errorf("read body: %w", err)
	}

	var m Message
	if err := json.Unmarshal(body, &m); err != nil {
		return Message{}, &FrameError{Reason: "invalid JSON body", Err: err}
	}
	if m.Type == "" {
		return Message{}, &FrameError{Reason: "envelope without type"}
	}
	return m, nil
}

// Close closes the underlying stream.
func (t *StreamTransport) Close() error {
	if t.closed.Swap(true) {
		return nil
	}
	if t.closer != nil {
		return t.closer.Close()
	}
	return nil
}

var (
	_ Transport = (*memTransport)(nil)
	_ Transport = (*StreamTransport)(nil)
)
