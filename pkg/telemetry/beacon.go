package telemetry

import (
	"context"
	"net"
	"time"
)

// defaultBeaconGroup and defaultBeaconPort are the simulator's documented
// multicast discovery address; used whenever WithDiscovery leaves the
// group empty.
const (
	defaultBeaconGroup = "239.255.1.1"
	defaultBeaconPort  = 49707
)

// discoverViaBeacon joins the simulator's discovery multicast group and
// waits for a single BECN datagram, or until the configured timeout (or
// ctx) expires. It is a best-effort convenience; callers are expected to
// fall back to an explicit host/port on failure.
func (c *Client) discoverViaBeacon(ctx context.Context) (BeaconEndpoint, bool) {
	group := c.cfg.BeaconMulticastGroup
	if group == "" {
		group = defaultBeaconGroup
	}
	port := c.cfg.BeaconPort
	if port == 0 {
		port = defaultBeaconPort
	}
	timeout := c.cfg.BeaconTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}

	addr := &net.UDPAddr{IP: net.ParseIP(group), Port: port}
	conn, err := net.ListenMulticastUDP("udp4", nil, addr)
	if err != nil {
		c.cfg.Logger.Warn("beacon listen failed", "error", err)
		return BeaconEndpoint{}, false
	}
	defer conn.Close()

	deadline := time.Now().Add(timeout)
	if dl, ok := ctx.Deadline(); ok && dl.Before(deadline) {
		deadline = dl
	}
	_ = conn.SetReadDeadline(deadline)

	buf := make([]byte, 1024)
	for {
		select {
		case <-ctx.Done():
			return BeaconEndpoint{}, false
		default:
		}
		n, src, err := conn.ReadFromUDP(buf)
		if err != nil {
			return BeaconEndpoint{}, false
		}
		host := ""
		if udpSrc, ok := any(src).(*net.UDPAddr); ok && udpSrc != nil {
			host = udpSrc.IP.String()
		}
		if ep, ok := ParseBeaconDatagram(buf[:n], host); ok {
			c.cfg.Logger.Info("discovered simulator via beacon", "host", ep.Host, "port", ep.Port)
			return ep, true
		}
	}
}
