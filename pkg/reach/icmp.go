package reach

import (
	"context"
	"errors"
	"fmt"
	"net"
	"sync/atomic"
	"time"

	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
)

const protocolICMP = 1

// ICMPPinger sends one echo request in-process over an unprivileged ICMP
// datagram socket. The host needs net.ipv4.ping_group_range to cover the
// process group.
type ICMPPinger struct {
	Timeout time.Duration
	ID      int
	seq     uint32
}

// Probe implements Prober.
func (p *ICMPPinger) Probe(ctx context.Context, host string) bool {
	if err := p.echo(ctx, host); err != nil {
		lg.Debugf("icmp echo %s: %v", host, err)
		return false
	}
	return true
}

func (p *ICMPPinger) echo(ctx context.Context, host string) error {
	ip, err := resolveIPv4(ctx, host)
	if err != nil {
		return err
	}

	conn, err := icmp.ListenPacket("udp4", "0.0.0.0")
	if err != nil {
		return fmt.Errorf("listen icmp: %w", err)
	}
	defer conn.Close()

	seq := int(atomic.AddUint32(&p.seq, 1) & 0xffff)
	msg := icmp.Message{
		Type: ipv4.ICMPTypeEcho,
		Code: 0,
		Body: &icmp.Echo{ID: p.ID, Seq: seq, Data: []byte("gate_bridge")},
	}
	b, err := msg.Marshal(nil)
	if err != nil {
		return fmt.Errorf("marshal echo: %w", err)
	}

	deadline := time.Now().Add(p.Timeout)
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := conn.SetDeadline(deadline); err != nil {
		return fmt.Errorf("set deadline: %w", err)
	}

	if _, err := conn.WriteTo(b, &net.UDPAddr{IP: ip}); err != nil {
		return fmt.Errorf("send echo: %w", err)
	}

	buf := make([]byte, 1500)
	for {
		n, peer, err := conn.ReadFrom(buf)
		if err != nil {
			return fmt.Errorf("read reply: %w", err)
		}
		if udp, ok := peer.(*net.UDPAddr); !ok || !udp.IP.Equal(ip) {
			continue
		}
		reply, err := icmp.ParseMessage(protocolICMP, buf[:n])
		if err != nil {
			continue
		}
		if reply.Type != ipv4.ICMPTypeEchoReply {
			continue
		}
		// the kernel rewrites the echo id on datagram sockets, seq is kept
		if echo, ok := reply.Body.(*icmp.Echo); ok && echo.Seq == seq {
			return nil
		}
	}
}

func resolveIPv4(ctx context.Context, host string) (net.IP, error) {
	if ip := net.ParseIP(host); ip != nil {
		if v4 := ip.To4(); v4 != nil {
			return v4, nil
		}
		return nil, fmt.Errorf("%s is not an IPv4 address", host)
	}
	addrs, err := net.DefaultResolver.LookupIPAddr(ctx, host)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", host, err)
	}
	for _, a := range addrs {
		if v4 := a.IP.To4(); v4 != nil {
			return v4, nil
		}
	}
	return nil, errors.New("no IPv4 address for " + host)
}
