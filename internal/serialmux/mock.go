package serialmux

import (
	"bytes"
	"errors"
	"io"
	"os"
	"strings"
	"sync"
	"time"
)

// MockSerialPort implements SerialPorter for dev mode: reads come from a
// generator goroutine and writes are captured to a file.
type MockSerialPort struct {
	lines   *io.PipeReader
	capture io.WriteCloser
}

func (m *MockSerialPort) Read(p []byte) (int, error)  { return m.lines.Read(p) }
func (m *MockSerialPort) Write(p []byte) (int, error) { return m.capture.Write(p) }

// Close stops the line generator by closing its pipe, then closes the
// capture file.
func (m *MockSerialPort) Close() error {
	m.lines.Close()
	return m.capture.Close()
}

// NewMockSerialMux creates a SerialMux whose Connect opens a simulated robot
// controller. The simulated controller emits mockLine every interval and its
// received drive commands are written to a temp file in the working
// directory.
func NewMockSerialMux(mockLine []byte, interval time.Duration) *SerialMux {
	opener := SerialPortOpener(func(path string, mode *SerialPortMode) (SerialPorter, error) {
		r, w := io.Pipe()
		f, err := os.CreateTemp(".", "mock_drive_link")
		if err != nil {
			return nil, err
		}
		logf("writing mock drive link output to %s", f.Name())

		go func() {
			defer w.Close()
			emitLines(w, mockLine, interval)
		}()

		return &MockSerialPort{lines: r, capture: f}, nil
	})
	return NewSerialMux(opener, "mock", nil)
}

// emitLines writes line to w every interval until a write fails, which
// happens once the reading side of the pipe is closed.
func emitLines(w io.Writer, line []byte, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for range ticker.C {
		if _, err := w.Write(line); err != nil {
			return
		}
	}
}

// TestableSerialPort is an in-memory robot port for tests. Reads drain
// lines queued with AddReadData; writes are captured for WrittenLines.
type TestableSerialPort struct {
	mu      sync.Mutex
	pending bytes.Buffer
	written bytes.Buffer
	wake    *sync.Cond

	// WriteLatency delays every write, with the lock released.
	WriteLatency time.Duration
	// ShortWrite makes Write accept one byte fewer than it was given.
	ShortWrite bool
	// BlockReads makes an empty port block in Read until data arrives or
	// the port is closed, like a real idle link. Otherwise Read returns
	// io.EOF.
	BlockReads bool
	// Closed is set by Close.
	Closed bool

	writeErr error
}

// NewTestableSerialPort returns an empty open port.
func NewTestableSerialPort() *TestableSerialPort {
	p := &TestableSerialPort{}
	p.wake = sync.NewCond(&p.mu)
	return p
}

var errPortClosed = errors.New("serial port closed")

func (p *TestableSerialPort) Read(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	for p.BlockReads && !p.Closed && p.pending.Len() == 0 {
		p.wake.Wait()
	}
	if p.Closed {
		return 0, errPortClosed
	}
	return p.pending.Read(b)
}

func (p *TestableSerialPort) Write(b []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Closed {
		return 0, errPortClosed
	}
	if p.writeErr != nil {
		return 0, p.writeErr
	}
	if d := p.WriteLatency; d > 0 {
		p.mu.Unlock()
		time.Sleep(d)
		p.mu.Lock()
	}
	if p.ShortWrite && len(b) > 0 {
		b = b[:len(b)-1]
	}
	return p.written.Write(b)
}

func (p *TestableSerialPort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.Closed = true
	p.wake.Broadcast()
	return nil
}

// AddReadData queues bytes for the reader, e.g. "G:0,0,0.1\n".
func (p *TestableSerialPort) AddReadData(data []byte) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.pending.Write(data)
	p.wake.Signal()
}

// SetWriteError makes every following Write fail with err (nil clears it).
func (p *TestableSerialPort) SetWriteError(err error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.writeErr = err
}

// WrittenLines returns what the link sent, one entry per line.
func (p *TestableSerialPort) WrittenLines() []string {
	p.mu.Lock()
	data := strings.TrimSuffix(p.written.String(), "\n")
	p.mu.Unlock()
	if data == "" {
		return nil
	}
	return strings.Split(data, "\n")
}

// MockSerialPortFactory hands out Port (or Error) and records each Open.
type MockSerialPortFactory struct {
	mu        sync.Mutex
	Port      SerialPorter
	Error     error
	OpenCalls []MockOpenCall
}

// MockOpenCall is one recorded Open.
type MockOpenCall struct {
	Path string
	Mode *SerialPortMode
}

func NewMockSerialPortFactory(port SerialPorter) *MockSerialPortFactory {
	return &MockSerialPortFactory{Port: port}
}

func (f *MockSerialPortFactory) Open(path string, mode *SerialPortMode) (SerialPorter, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.OpenCalls = append(f.OpenCalls, MockOpenCall{Path: path, Mode: mode})
	if f.Error != nil {
		return nil, f.Error
	}
	return f.Port, nil
}

// Calls returns how many times Open was called.
func (f *MockSerialPortFactory) Calls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.OpenCalls)
}
