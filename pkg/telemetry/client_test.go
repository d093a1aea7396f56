package telemetry

import (
	"context"
	"net"
	"testing"
	"time"
)

// fakeSimulator listens on a UDP socket and echoes a fixed set of values
// back to whoever subscribes, mimicking the simulator's RREF exchange
// closely enough to exercise Client end to end.
type fakeSimulator struct {
	conn *net.UDPConn
}

func startFakeSimulator(t *testing.T) (*fakeSimulator, int) {
	t.Helper()
	conn, err := net.ListenUDP("udp4", &net.UDPAddr{IP: net.IPv4zero, Port: 0})
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	return &fakeSimulator{conn: conn}, conn.LocalAddr().(*net.UDPAddr).Port
}

func (f *fakeSimulator) serveOnce(t *testing.T, values map[int32]float32) {
	t.Helper()
	buf := make([]byte, rrefRequestSize)
	_ = f.conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, addr, err := f.conn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("fake simulator read: %v", err)
	}
	resp := BuildRREFResponse(values)
	if _, err := f.conn.WriteToUDP(resp, addr); err != nil {
		t.Fatalf("fake simulator write: %v", err)
	}
}

func TestClientDecodesInboundSnapshot(t *testing.T) {
	sim, port := startFakeSimulator(t)
	defer sim.conn.Close()

	c := New(
		WithHostPort("127.0.0.1", port),
		WithLocalPort(0),
		WithRateHz(5),
	)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := c.Start(ctx); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	defer c.Stop()

	values := map[int32]float32{
		indexByKey[keyLatitude]:  37.5,
		indexByKey[keyLongitude]: -122.1,
		indexByKey[keyIAS]:       65.0,
		indexByKey[keyOnGround]:  1.0,
	}
	sim.serveOnce(t, values)

	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if _, ok := c.Latest(); ok {
			break
		}
		time.Sleep(10 * time.Millisecond)
	}

	snap, ok := c.Latest()
	if !ok {
		t.Fatalf("Latest() never populated")
	}
	if snap.LatitudeDeg == nil || *snap.LatitudeDeg != 37.5 {
		t.Errorf("LatitudeDeg = %v, want 37.5", snap.LatitudeDeg)
	}
	if !snap.OnGround {
		t.Errorf("OnGround = false, want true")
	}
	if snap.EngineRunning != nil {
		t.Errorf("EngineRunning = %v, want nil (field never reported)", *snap.EngineRunning)
	}

	window := c.Window(time.Minute)
	if len(window) != 1 {
		t.Fatalf("Window() len = %d, want 1", len(window))
	}
}

func TestClientLatestBeforeAnyDataIsFalse(t *testing.T) {
	c := New(WithHostPort("127.0.0.1", 1), WithLocalPort(0))
	if _, ok := c.Latest(); ok {
		t.Fatalf("Latest() ok = true before Start, want false")
	}
}

func TestClientStartFailsWithoutEndpoint(t *testing.T) {
	c := New(WithHostPort("", 0), WithLocalPort(0))
	if err := c.Start(context.Background()); err == nil {
		t.Fatalf("Start() error = nil, want error for missing endpoint")
	}
}
