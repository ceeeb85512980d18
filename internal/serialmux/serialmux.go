// Serialmux provides an abstraction over the robot's serial drive link with
// the ability for multiple clients to subscribe to lines sent back by the
// robot and for the control loop to write command lines to it.
package serialmux

import (
	"bufio"
	"bytes"
	"context"
	crand "crypto/rand"
	"encoding/hex"
	"errors"
	"fmt"
	"html"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"

	"tailscale.com/tsweb"

	"github.com/banshee-data/cone.pilot/internal/monitoring"
)

var (
	ErrWriteFailed  = fmt.Errorf("failed to write to serial port")
	ErrNotConnected = errors.New("serial link not connected")
)

var logf = monitoring.Component("link")

// SerialMux multiplexes a single serial link: lines read from the robot fan
// out to subscribers, and command lines from any caller are serialised onto
// the port.
//
// The port is opened by Connect, normally from a one-shot goroutine. Until it
// succeeds IsConnected reports false and writes fail with ErrNotConnected.
type SerialMux struct {
	factory SerialPortFactory
	path    string
	mode    *SerialPortMode

	// connected has a single writer (Connect/Close) and is read by the frame
	// worker on every frame without taking any lock.
	connected atomic.Bool

	portMu sync.Mutex
	port   SerialPorter

	subscribers  map[string]chan string
	subscriberMu sync.Mutex
	commandMu    sync.Mutex
	closing      bool
	closingMu    sync.Mutex
}

// SerialMuxInterface defines the interface for the SerialMux type.
type SerialMuxInterface interface {
	// Subscribe creates a new channel for receiving line events from the serial
	// port. The channel ID is used to identify the unique channel when
	// unsubscribing.
	Subscribe() (string, chan string)
	// Unsubscribe removes a channel from the list of subscribers.
	Unsubscribe(string)
	// Connect opens the serial port. It is called once.
	Connect(context.Context) error
	// IsConnected reports whether Connect has succeeded. It never blocks.
	IsConnected() bool
	// WriteLine writes one LF-terminated line to the serial port.
	WriteLine([]byte) error
	// SendCommand writes the provided command to the serial port.
	SendCommand(string) error
	// Monitor reads lines from the serial port and sends them to the
	// appropriate channels.
	Monitor(context.Context) error
	// Close closes all subscribed channels and closes the serial port.
	Close() error

	// AttachAdminRoutes attaches admin debugging endpoints to the given HTTP
	// mux served at /debug/. These routes are accessible only over
	// localhost/via Tailscale and are not publicly accessible.
	AttachAdminRoutes(*http.ServeMux)
}

// NewSerialMux creates a SerialMux that will open path through factory when
// Connect is called. A nil mode uses DefaultSerialPortMode.
func NewSerialMux(factory SerialPortFactory, path string, mode *SerialPortMode) *SerialMux {
	if mode == nil {
		mode = DefaultSerialPortMode()
	}
	return &SerialMux{
		factory:     factory,
		path:        path,
		mode:        mode,
		subscribers: make(map[string]chan string),
	}
}

// NewConnectedSerialMux wraps an already open port. The returned mux reports
// connected immediately.
func NewConnectedSerialMux(port SerialPorter) *SerialMux {
	s := NewSerialMux(nil, "", nil)
	s.port = port
	s.connected.Store(true)
	return s
}

func (s *SerialMux) String() string {
	return fmt.Sprintf("serialmux(%s, connected=%t)", s.path, s.IsConnected())
}

// randomID generates a random channel ID (8 byte random hex encoded value)
func randomID() string {
	b := make([]byte, 8)
	crand.Read(b)
	return hex.EncodeToString(b)
}

// subscriberBuffer is the number of lines a slow subscriber may lag behind
// before Monitor starts dropping lines for it.
const subscriberBuffer = 16

func (s *SerialMux) Subscribe() (string, chan string) {
	id := randomID()
	ch := make(chan string, subscriberBuffer)
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	s.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber from the serial mux.
func (s *SerialMux) Unsubscribe(id string) {
	s.subscriberMu.Lock()
	defer s.subscriberMu.Unlock()
	if ch, ok := s.subscribers[id]; ok {
		close(ch)
		delete(s.subscribers, id)
	}
}

// Connect opens the serial port. Calling it on a connected mux is a no-op.
// Failures are returned and leave the mux disconnected; the caller decides
// whether to log and carry on without a link.
func (s *SerialMux) Connect(ctx context.Context) error {
	if s.IsConnected() {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if s.factory == nil {
		return fmt.Errorf("no serial port factory configured")
	}

	port, err := s.factory.Open(s.path, s.mode)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", s.path, err)
	}

	s.portMu.Lock()
	s.port = port
	s.portMu.Unlock()
	s.connected.Store(true)

	logf("connected to %s at %d baud", s.path, s.mode.BaudRate)
	return nil
}

// IsConnected reports whether the link is open.
func (s *SerialMux) IsConnected() bool {
	return s.connected.Load()
}

// WriteLine writes line to the serial port, appending a newline if missing.
func (s *SerialMux) WriteLine(line []byte) error {
	if !s.IsConnected() {
		return ErrNotConnected
	}
	s.portMu.Lock()
	port := s.port
	s.portMu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	if !bytes.HasSuffix(line, []byte("\n")) {
		line = append(line[:len(line):len(line)], '\n') // ensure command ends with a newline
	}

	s.commandMu.Lock()
	defer s.commandMu.Unlock()
	n, err := port.Write(line)
	if err != nil {
		return err
	}
	if n != len(line) {
		return ErrWriteFailed
	}
	return nil
}

// SendCommand sends a command to the serial port.
func (s *SerialMux) SendCommand(command string) error {
	return s.WriteLine([]byte(command))
}

// Monitor monitors the serial port for lines and sends them to subscribers.
// It returns ErrNotConnected if called before Connect succeeds.
func (s *SerialMux) Monitor(ctx context.Context) error {
	s.portMu.Lock()
	port := s.port
	s.portMu.Unlock()
	if port == nil {
		return ErrNotConnected
	}

	scan := bufio.NewScanner(port)

	lineChan := make(chan string)
	scanErrChan := make(chan error, 1)

	// start a goroutine to read from the serial port & send any lines that are scanned to linesChan.
	// and any errors to the scanErrChan
	//
	// the blocking scan.Scan will not interfere with our outer loop awaiting
	// lines & context cancellation.
	go func() {
		defer close(lineChan)
		for scan.Scan() {
			select {
			case lineChan <- scan.Text():
			case <-ctx.Done():
				return
			}
		}
		if err := scan.Err(); err != nil {
			select {
			case scanErrChan <- err:
			case <-ctx.Done():
			}
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()

		case err := <-scanErrChan:
			return err

		case line, ok := <-lineChan:
			// if the channel is closed, we're done reading from the serial port
			if !ok {
				if err := scan.Err(); err != nil {
					return err
				}
				return nil
			}
			s.closingMu.Lock()
			if s.closing {
				s.closingMu.Unlock()
				return nil
			}
			s.closingMu.Unlock()

			s.subscriberMu.Lock()
			for _, ch := range s.subscribers {
				select {
				case ch <- line:
				default:
					// if the channel is full/blocking skip so as not to block the outer loop
				}
			}
			s.subscriberMu.Unlock()
		}
	}
}

func (s *SerialMux) Close() error {
	s.closingMu.Lock()
	s.closing = true
	s.closingMu.Unlock()

	s.subscriberMu.Lock()
	for id, ch := range s.subscribers {
		close(ch)
		delete(s.subscribers, id)
	}
	s.subscriberMu.Unlock()

	s.connected.Store(false)

	s.portMu.Lock()
	defer s.portMu.Unlock()
	if s.port == nil {
		return nil
	}
	return s.port.Close()
}

const sendCommandPage = `<!doctype html>
<html><body>
<h3>Drive link %s</h3>
<form method="post" action="send-drive-api">
steering <input name="steering" value="0"> throttle <input name="throttle" value="0">
<button type="submit">send</button>
</form>
<form method="post" action="send-command-api">
raw line <input name="command"> <button type="submit">send</button>
</form>
<p><a href="tail">tail</a> (server-sent events)</p>
</body></html>`

func (s *SerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	debug := tsweb.Debugger(mux)

	debug.HandleFunc("send-command", "send a drive command or raw line to the robot", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/html; charset=utf-8")
		io.WriteString(w, fmt.Sprintf(sendCommandPage, html.EscapeString(s.String())))
	})

	debug.HandleSilentFunc("send-drive-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		steering, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("steering")), 64)
		if err != nil {
			http.Error(w, "Invalid steering", http.StatusBadRequest)
			return
		}
		throttle, err := strconv.ParseFloat(strings.TrimSpace(r.FormValue("throttle")), 64)
		if err != nil {
			http.Error(w, "Invalid throttle", http.StatusBadRequest)
			return
		}
		line := EncodeDriveCommand(steering, throttle)
		if err := s.SendCommand(line); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write command: %v", err), http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote %q to serial port", line))
	})

	// API endpoint to write command to the serial port
	debug.HandleSilentFunc("send-command-api", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}
		command := strings.TrimSpace(r.FormValue("command"))
		if command == "" {
			http.Error(w, "Missing command", http.StatusBadRequest)
			return
		}
		if err := s.SendCommand(command); err != nil {
			http.Error(w, fmt.Sprintf("Failed to write command: %v", err), http.StatusServiceUnavailable)
			return
		}
		io.WriteString(w, fmt.Sprintf("Wrote command %q to serial port", command))
	})

	// API endpoint to issue Server-Side Events (SSE) in response to lines coming from the serial port.
	debug.HandleSilentFunc("tail", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.Header().Set("X-Accel-Buffering", "no") // Disable buffering for nginx

		id, c := s.Subscribe()
		defer s.Unsubscribe(id)

		w.Write([]byte(": ping\n\n"))
		if f, ok := w.(http.Flusher); ok {
			f.Flush()
		}

		for {
			select {
			case payload, ok := <-c:
				if !ok {
					return
				}
				if _, err := w.Write([]byte(fmt.Sprintf("data: %s\n\n", payload))); err != nil {
					return
				}
				if f, ok := w.(http.Flusher); ok {
					f.Flush()
				}
			case <-r.Context().Done():
				return
			}
		}
	})
}
