package proxy

import (
	"context"
	"errors"
	"net"
	"sync"

	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
)

const maxDatagram = 64 * 1024

// udpRelay forwards allowed client datagrams to the backend and fans every
// backend reply out to all clients that have sent an allowed datagram.
type udpRelay struct {
	svc  *Service
	conn net.PacketConn
	cfg  Config
	log  *logging.Logger
	dial func(ctx context.Context, network, address string) (net.Conn, error)

	mu       sync.Mutex
	upstream net.Conn
	clients  map[string]net.Addr
	closed   bool
	wg       sync.WaitGroup
}

func newUDPRelay(svc *Service, conn net.PacketConn, cfg Config) *udpRelay {
	return &udpRelay{
		svc:     svc,
		conn:    conn,
		cfg:     cfg,
		log:     svc.engine.Logger(),
		dial:    (&net.Dialer{}).DialContext,
		clients: make(map[string]net.Addr),
	}
}

// start dials the backend and launches the inbound reader. A failed dial is
// logged and retried on the next allowed datagram.
func (u *udpRelay) start(ctx context.Context) {
	if _, err := u.ensureUpstream(ctx); err != nil {
		u.log.Error("UDP upstream unavailable", "target", u.cfg.TargetAddr(), "error", err)
	}
	u.wg.Add(1)
	go u.readInbound(ctx)
}

// ensureUpstream returns the backend socket, dialing it if needed. The dial
// runs without holding mu so name resolution never stalls the reply path.
func (u *udpRelay) ensureUpstream(ctx context.Context) (net.Conn, error) {
	u.mu.Lock()
	closed, up := u.closed, u.upstream
	u.mu.Unlock()
	if closed {
		return nil, net.ErrClosed
	}
	if up != nil {
		return up, nil
	}

	dialed, err := u.dial(ctx, "udp", u.cfg.TargetAddr())
	if err != nil {
		return nil, err
	}

	u.mu.Lock()
	defer u.mu.Unlock()
	if u.closed {
		dialed.Close()
		return nil, net.ErrClosed
	}
	if u.upstream != nil {
		dialed.Close()
		return u.upstream, nil
	}
	u.upstream = dialed
	u.wg.Add(1)
	go u.readUpstream(dialed)
	return dialed, nil
}

func (u *udpRelay) readInbound(ctx context.Context) {
	defer u.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, addr, err := u.conn.ReadFrom(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || ctx.Err() != nil {
				return
			}
			u.log.Error("UDP error", "error", err)
			continue
		}

		srcIP, srcPort, ok := firewall.SplitEndpoint(addr)
		if !ok {
			continue
		}
		packet := firewall.PacketInfo{
			Protocol: firewall.ProtocolUDP,
			SrcIP:    srcIP,
			SrcPort:  srcPort,
			DstIP:    u.cfg.TargetHost,
			DstPort:  u.cfg.TargetPort,
			Payload:  buf[:n],
		}
		d := u.svc.engine.Evaluate(packet)
		u.svc.engine.Record(packet, d, "udp inbound")
		if !d.Allowed() {
			u.svc.metrics.RecordDrop(DirectionClientToServer)
			continue
		}

		up, err := u.ensureUpstream(ctx)
		if err != nil {
			u.log.Error("UDP upstream unavailable", "target", u.cfg.TargetAddr(), "error", err)
			continue
		}
		u.addClient(addr)
		if _, err := up.Write(buf[:n]); err != nil {
			u.log.Error("UDP error", "error", err)
			continue
		}
		u.svc.metrics.RecordForward(DirectionClientToServer, n)
	}
}

// readUpstream broadcasts backend replies. Replies are not evaluated.
func (u *udpRelay) readUpstream(up net.Conn) {
	defer u.wg.Done()

	buf := make([]byte, maxDatagram)
	for {
		n, err := up.Read(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) || u.isClosed() {
				return
			}
			// Connected UDP sockets surface ICMP errors on read.
			u.log.Error("UDP error", "error", err)
			continue
		}

		for _, addr := range u.snapshotClients() {
			if _, err := u.conn.WriteTo(buf[:n], addr); err != nil {
				u.log.Error("UDP error", "client", addr.String(), "error", err)
				continue
			}
			u.svc.metrics.RecordForward(DirectionServerToClient, n)
		}
	}
}

func (u *udpRelay) addClient(addr net.Addr) {
	u.mu.Lock()
	defer u.mu.Unlock()
	if _, ok := u.clients[addr.String()]; ok {
		return
	}
	u.clients[addr.String()] = addr
	u.svc.metrics.UDPClients.Set(float64(len(u.clients)))
}

func (u *udpRelay) snapshotClients() []net.Addr {
	u.mu.Lock()
	defer u.mu.Unlock()
	out := make([]net.Addr, 0, len(u.clients))
	for _, a := range u.clients {
		out = append(out, a)
	}
	return out
}

// Clients returns the number of known client addresses.
func (u *udpRelay) Clients() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.clients)
}

func (u *udpRelay) isClosed() bool {
	u.mu.Lock()
	defer u.mu.Unlock()
	return u.closed
}

// close shuts both sockets, waits for the readers and forgets every client.
func (u *udpRelay) close() {
	u.mu.Lock()
	u.closed = true
	up := u.upstream
	u.upstream = nil
	u.mu.Unlock()

	u.conn.Close()
	if up != nil {
		up.Close()
	}
	u.wg.Wait()

	u.mu.Lock()
	clear(u.clients)
	u.mu.Unlock()
	u.svc.metrics.UDPClients.Set(0)
}
