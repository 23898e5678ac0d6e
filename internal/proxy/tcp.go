package proxy

import (
	"context"
	"errors"
	"net"
	"time"

	"github.com/google/uuid"

	"grimm.is/tollgate/internal/firewall"
	"grimm.is/tollgate/internal/logging"
)

const (
	chunkSize = 4096

	DirectionClientToServer = "client_to_server"
	DirectionServerToClient = "server_to_client"
)

// acceptLoop runs until the listener is closed.
func (s *Service) acceptLoop(ctx context.Context, ln net.Listener, cfg Config) {
	defer s.wg.Done()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil || errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Error("Accept failed", "error", err)
			select {
			case <-ctx.Done():
				return
			case <-time.After(50 * time.Millisecond):
			}
			continue
		}

		s.wg.Add(1)
		go s.handleTCP(ctx, conn, cfg)
	}
}

// handleTCP gates a new connection on the engine, dials the backend and then
// relays both directions, evaluating every chunk.
func (s *Service) handleTCP(ctx context.Context, client net.Conn, cfg Config) {
	defer s.wg.Done()

	if !s.track(client) {
		return
	}
	defer s.untrack(client)
	defer client.Close()

	clientIP, clientPort, ok := firewall.SplitEndpoint(client.RemoteAddr())
	if !ok {
		return
	}
	localIP, localPort, ok := firewall.SplitEndpoint(client.LocalAddr())
	if !ok {
		return
	}

	log := s.logger.WithFields(map[string]any{
		"conn":   uuid.NewString(),
		"client": client.RemoteAddr().String(),
	})

	request := firewall.PacketInfo{
		Protocol: firewall.ProtocolTCP,
		SrcIP:    clientIP,
		SrcPort:  clientPort,
		DstIP:    localIP,
		DstPort:  localPort,
	}
	d := s.engine.Evaluate(request)
	s.engine.Record(request, d, "connection request")
	if !d.Allowed() {
		s.metrics.ConnectionsTotal.WithLabelValues("denied").Inc()
		log.Debug("Connection refused", "action", d.Action.String(), "source", d.Source)
		return
	}

	var dialer net.Dialer
	upstream, err := dialer.DialContext(ctx, "tcp", cfg.TargetAddr())
	if err != nil {
		s.metrics.ConnectionsTotal.WithLabelValues("dial_failed").Inc()
		s.metrics.DialFailures.Inc()
		s.engine.CreateLogRecord(request, firewall.ActionDeny, firewall.SourceProxy, "connect failed: "+err.Error())
		return
	}
	if !s.track(upstream) {
		return
	}
	defer s.untrack(upstream)
	defer upstream.Close()

	s.metrics.ConnectionsTotal.WithLabelValues("relayed").Inc()
	s.metrics.ActiveConnections.Inc()
	defer s.metrics.ActiveConnections.Dec()
	log.Debug("Relaying connection", "target", cfg.TargetAddr())

	toServer := relay{
		from: client,
		to:   upstream,
		dir:  DirectionClientToServer,
		template: firewall.PacketInfo{
			Protocol: firewall.ProtocolTCP,
			SrcIP:    clientIP,
			SrcPort:  clientPort,
			DstIP:    localIP,
			DstPort:  localPort,
		},
	}
	toClient := relay{
		from: upstream,
		to:   client,
		dir:  DirectionServerToClient,
		template: firewall.PacketInfo{
			Protocol: firewall.ProtocolTCP,
			SrcIP:    cfg.TargetHost,
			SrcPort:  cfg.TargetPort,
			DstIP:    clientIP,
			DstPort:  clientPort,
		},
	}

	done := make(chan struct{}, 2)
	go func() {
		s.forward(toServer, log)
		done <- struct{}{}
	}()
	go func() {
		s.forward(toClient, log)
		done <- struct{}{}
	}()

	// Either direction ending tears down the whole connection.
	<-done
	client.Close()
	upstream.Close()
	<-done
	log.Debug("Connection closed")
}

// relay is one direction of a TCP connection.
type relay struct {
	from, to net.Conn
	dir      string
	template firewall.PacketInfo
}

// forward copies chunks until EOF, a read or write error, or a chunk the
// engine does not allow. A dropped chunk ends the direction.
func (s *Service) forward(r relay, log *logging.Logger) {
	buf := make([]byte, chunkSize)
	for {
		n, err := r.from.Read(buf)
		if n > 0 {
			packet := r.template
			packet.Payload = buf[:n]

			d := s.engine.Evaluate(packet)
			s.engine.Record(packet, d, r.dir)
			if !d.Allowed() {
				s.metrics.RecordDrop(r.dir)
				log.Debug("Chunk dropped", "direction", r.dir, "rule", d.RuleName())
				return
			}
			if _, werr := r.to.Write(buf[:n]); werr != nil {
				return
			}
			s.metrics.RecordForward(r.dir, n)
		}
		if err != nil {
			return
		}
	}
}
