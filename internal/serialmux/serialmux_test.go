package serialmux

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewSerialMux_DefaultMode(t *testing.T) {
	mux := NewSerialMux(NewMockSerialPortFactory(NewTestableSerialPort()), "/dev/ttyUSB0", nil)
	require.NotNil(t, mux)
	assert.Equal(t, DefaultSerialPortMode(), mux.mode)
	assert.False(t, mux.IsConnected())
	assert.Contains(t, mux.String(), "/dev/ttyUSB0")
}

func TestSerialMux_Connect(t *testing.T) {
	t.Run("opens once and flips connected", func(t *testing.T) {
		port := NewTestableSerialPort()
		factory := NewMockSerialPortFactory(port)
		mux := NewSerialMux(factory, "/dev/rfcomm0", nil)

		require.NoError(t, mux.Connect(context.Background()))
		assert.True(t, mux.IsConnected())

		// already connected: no second open
		require.NoError(t, mux.Connect(context.Background()))
		assert.Equal(t, 1, factory.Calls())
		assert.Equal(t, "/dev/rfcomm0", factory.OpenCalls[0].Path)
		assert.Equal(t, 115200, factory.OpenCalls[0].Mode.BaudRate)
	})

	t.Run("open failure leaves link down", func(t *testing.T) {
		factory := NewMockSerialPortFactory(nil)
		factory.Error = errors.New("no such device")
		mux := NewSerialMux(factory, "/dev/rfcomm0", nil)

		err := mux.Connect(context.Background())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "no such device")
		assert.False(t, mux.IsConnected())
		assert.ErrorIs(t, mux.WriteLine([]byte("S:0.000;T:0.000")), ErrNotConnected)
	})

	t.Run("cancelled context", func(t *testing.T) {
		factory := NewMockSerialPortFactory(NewTestableSerialPort())
		mux := NewSerialMux(factory, "/dev/rfcomm0", nil)

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		assert.ErrorIs(t, mux.Connect(ctx), context.Canceled)
		assert.Equal(t, 0, factory.Calls())
	})

	t.Run("no factory", func(t *testing.T) {
		mux := NewSerialMux(nil, "", nil)
		assert.Error(t, mux.Connect(context.Background()))
	})
}

func TestSerialMux_ConnectRacesReader(t *testing.T) {
	// the frame worker polls IsConnected while the handshake runs
	port := NewTestableSerialPort()
	port.WriteLatency = time.Millisecond
	mux := NewSerialMux(NewMockSerialPortFactory(port), "/dev/rfcomm0", nil)
	ch := NewCommandChannel(mux)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_ = mux.Connect(context.Background())
	}()

	for i := 0; i < 50; i++ {
		ch.Send(0.35, 0.2)
	}
	wg.Wait()

	stats := ch.Stats()
	assert.Equal(t, uint64(50), stats.Sent+stats.Dropped)
	assert.Equal(t, int(stats.Sent), len(port.WrittenLines()))
}

func TestSerialMux_WriteLine(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewConnectedSerialMux(port)

	require.NoError(t, mux.WriteLine([]byte("S:0.100;T:0.200\n")))
	require.NoError(t, mux.SendCommand("S:0.300;T:0.400"))
	assert.Equal(t, []string{"S:0.100;T:0.200", "S:0.300;T:0.400"}, port.WrittenLines())

	t.Run("write error", func(t *testing.T) {
		port.SetWriteError(errors.New("EIO"))
		defer port.SetWriteError(nil)
		assert.EqualError(t, mux.WriteLine([]byte("x")), "EIO")
	})

	t.Run("short write", func(t *testing.T) {
		port.ShortWrite = true
		defer func() { port.ShortWrite = false }()
		assert.ErrorIs(t, mux.WriteLine([]byte("x")), ErrWriteFailed)
	})
}

func TestSerialMux_WriteLineDoesNotAliasCaller(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewConnectedSerialMux(port)

	buf := make([]byte, 4, 16)
	copy(buf, "S:1;")
	require.NoError(t, mux.WriteLine(buf))
	assert.Equal(t, byte(0), buf[:5][4], "caller's spare capacity must not be written")
}

func TestSerialMux_SubscribeUnsubscribe(t *testing.T) {
	mux := NewConnectedSerialMux(NewTestableSerialPort())

	id1, ch1 := mux.Subscribe()
	id2, _ := mux.Subscribe()
	assert.NotEqual(t, id1, id2)

	mux.Unsubscribe(id1)
	_, ok := <-ch1
	assert.False(t, ok, "channel should be closed after unsubscribe")

	// unknown IDs are ignored
	mux.Unsubscribe("non-existent-id")

	mux.subscriberMu.Lock()
	assert.Len(t, mux.subscribers, 1)
	mux.subscriberMu.Unlock()
}

func TestSerialMux_Monitor(t *testing.T) {
	port := NewTestableSerialPort()
	port.AddReadData([]byte("G:0.0,0.0,0.5\nOK\n"))
	mux := NewConnectedSerialMux(port)

	_, ch := mux.Subscribe()

	var got []string
	done := make(chan struct{})
	go func() {
		defer close(done)
		for line := range ch {
			got = append(got, line)
			if len(got) == 2 {
				return
			}
		}
	}()

	errCh := make(chan error, 1)
	go func() { errCh <- mux.Monitor(context.Background()) }()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for lines")
	}
	assert.Equal(t, []string{"G:0.0,0.0,0.5", "OK"}, got)

	select {
	case err := <-errCh:
		assert.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop at EOF")
	}
}

func TestSerialMux_MonitorBeforeConnect(t *testing.T) {
	mux := NewSerialMux(NewMockSerialPortFactory(NewTestableSerialPort()), "/dev/null", nil)
	assert.ErrorIs(t, mux.Monitor(context.Background()), ErrNotConnected)
}

func TestSerialMux_MonitorCancel(t *testing.T) {
	port := NewTestableSerialPort()
	port.BlockReads = true
	mux := NewConnectedSerialMux(port)

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- mux.Monitor(ctx) }()

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(time.Second):
		t.Fatal("monitor did not stop on cancel")
	}
	require.NoError(t, mux.Close())
}

func TestSerialMux_Close(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewConnectedSerialMux(port)
	_, ch := mux.Subscribe()

	require.NoError(t, mux.Close())
	assert.True(t, port.Closed)
	assert.False(t, mux.IsConnected())
	_, ok := <-ch
	assert.False(t, ok)

	// closing an unconnected mux is fine
	assert.NoError(t, NewSerialMux(nil, "", nil).Close())
}

func TestSerialMux_AdminRoutes(t *testing.T) {
	port := NewTestableSerialPort()
	mux := NewConnectedSerialMux(port)
	httpMux := http.NewServeMux()
	mux.AttachAdminRoutes(httpMux)

	t.Run("send drive", func(t *testing.T) {
		form := url.Values{"steering": {"-0.4195"}, "throttle": {"0.1499"}}
		req := httptest.NewRequest(http.MethodPost, "/debug/send-drive-api", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "127.0.0.1:1234"
		rec := httptest.NewRecorder()
		httpMux.ServeHTTP(rec, req)

		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		assert.Contains(t, port.WrittenLines(), "S:-0.420;T:0.150")
	})

	t.Run("bad steering", func(t *testing.T) {
		form := url.Values{"steering": {"left"}, "throttle": {"0.1"}}
		req := httptest.NewRequest(http.MethodPost, "/debug/send-drive-api", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		req.RemoteAddr = "127.0.0.1:1234"
		rec := httptest.NewRecorder()
		httpMux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusBadRequest, rec.Code)
	})

	t.Run("raw command requires POST", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/debug/send-command-api", nil)
		req.RemoteAddr = "127.0.0.1:1234"
		rec := httptest.NewRecorder()
		httpMux.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	})
}

type nopCapture struct{ strings.Builder }

func (*nopCapture) Close() error { return nil }

func TestMockSerialPort_CloseStopsGenerator(t *testing.T) {
	r, w := io.Pipe()
	port := &MockSerialPort{lines: r, capture: &nopCapture{}}

	done := make(chan struct{})
	go func() {
		defer close(done)
		// nobody reads, so the first write blocks until Close
		emitLines(w, []byte(`{"battery_v":7.4}`+"\n"), time.Millisecond)
	}()

	time.Sleep(20 * time.Millisecond)
	require.NoError(t, port.Close())

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("line generator still running after Close")
	}
	_, err := port.Read(make([]byte, 8))
	assert.ErrorIs(t, err, io.ErrClosedPipe)
}
