package serialmux

import (
	"context"
	"net/http"
	"sync"

	"tailscale.com/tsweb"
)

// DisabledSerialMux stands in for the drive link under -disable-link. It
// never connects, so the control loop keeps running and every command is
// counted as dropped. Subscriber channels are closed on Unsubscribe and
// Close so line readers exit at shutdown.
type DisabledSerialMux struct {
	mu     sync.Mutex
	subs   map[string]chan string
	closed bool
}

func NewDisabledSerialMux() *DisabledSerialMux {
	return &DisabledSerialMux{subs: make(map[string]chan string)}
}

func (d *DisabledSerialMux) Subscribe() (string, chan string) {
	id, ch := randomID(), make(chan string)
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		close(ch)
	} else {
		d.subs[id] = ch
	}
	return id, ch
}

func (d *DisabledSerialMux) Unsubscribe(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if ch, ok := d.subs[id]; ok {
		close(ch)
		delete(d.subs, id)
	}
}

func (d *DisabledSerialMux) Connect(context.Context) error { return ErrNotConnected }
func (d *DisabledSerialMux) IsConnected() bool             { return false }
func (d *DisabledSerialMux) WriteLine([]byte) error        { return ErrNotConnected }
func (d *DisabledSerialMux) SendCommand(string) error      { return ErrNotConnected }

func (d *DisabledSerialMux) Monitor(ctx context.Context) error {
	<-ctx.Done()
	return ctx.Err()
}

func (d *DisabledSerialMux) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for id, ch := range d.subs {
		close(ch)
		delete(d.subs, id)
	}
	return nil
}

func (d *DisabledSerialMux) String() string { return "disabled" }

// AttachAdminRoutes lists a single /debug/link page saying the link is off.
func (d *DisabledSerialMux) AttachAdminRoutes(mux *http.ServeMux) {
	tsweb.Debugger(mux).HandleFunc("link", "Drive link status", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte("drive link disabled (-disable-link)\n"))
	})
}
