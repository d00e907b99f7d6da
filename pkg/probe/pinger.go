// Package probe measures peer reachability with ICMP echo probes. A
// bounded pool of workers runs a fixed probe sequence per peer and
// produces exactly one result per input record.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"os"
	"sync/atomic"
	"time"

	"github.com/projectdiscovery/gcache"
	mapsutil "github.com/projectdiscovery/utils/maps"
	"golang.org/x/net/icmp"
	"golang.org/x/net/ipv4"
	"golang.org/x/net/ipv6"
)

// ErrProbeFacility means no ICMP socket could be opened at all. This is
// fatal for the whole run and reported once, never per peer.
var ErrProbeFacility = errors.New("icmp echo facility unavailable")

// Pinger issues a single echo probe against a host and reports the
// round-trip time. Implementations must be safe for concurrent use.
type Pinger interface {
	Ping(ctx context.Context, addr string) (time.Duration, error)
}

// ICMPPinger sends echo requests through shared raw sockets, one per IP
// family, and matches replies to callers by echo ID and sequence number.
type ICMPPinger struct {
	timeout time.Duration
	echoID  int
	seq     atomic.Int64

	conn4 *familyConn
	conn6 *familyConn

	// hosts repeat across tcp:// and tls:// records, resolve once
	resolved gcache.Cache[string, net.IP]
}

type familyConn struct {
	conn    net.PacketConn
	proto   int
	reply   icmp.Type
	pending *mapsutil.SyncLockMap[int, *pendingEcho]
	done    chan struct{}
}

type pendingEcho struct {
	ip    net.IP
	sent  time.Time
	reply chan time.Duration
}

// NewICMPPinger opens the shared sockets and starts their receivers.
// Missing a single family degrades probes for that family to loss;
// missing both is ErrProbeFacility.
func NewICMPPinger(timeout time.Duration) (*ICMPPinger, error) {
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	p := &ICMPPinger{
		timeout: timeout,
		echoID:  os.Getpid() & 0xffff,
		resolved: gcache.New[string, net.IP](1024).
			LRU().
			Expiration(10 * time.Minute).
			Build(),
	}

	if conn, err := icmp.ListenPacket("ip4:icmp", "0.0.0.0"); err == nil {
		p.conn4 = newFamilyConn(conn, ipv4.ICMPTypeEchoReply.Protocol(), ipv4.ICMPTypeEchoReply, p.echoID)
	}
	if conn, err := icmp.ListenPacket("ip6:ipv6-icmp", "::"); err == nil {
		p.conn6 = newFamilyConn(conn, ipv6.ICMPTypeEchoReply.Protocol(), ipv6.ICMPTypeEchoReply, p.echoID)
	}
	if p.conn4 == nil && p.conn6 == nil {
		return nil, fmt.Errorf("%w: raw sockets denied, run as root or grant CAP_NET_RAW", ErrProbeFacility)
	}
	return p, nil
}

func newFamilyConn(conn net.PacketConn, proto int, reply icmp.Type, echoID int) *familyConn {
	fc := &familyConn{
		conn:    conn,
		proto:   proto,
		reply:   reply,
		pending: mapsutil.NewSyncLockMap[int, *pendingEcho](),
		done:    make(chan struct{}),
	}
	go fc.receive(echoID)
	return fc
}

// Ping sends one echo request and waits for the matching reply.
func (p *ICMPPinger) Ping(ctx context.Context, addr string) (time.Duration, error) {
	ip, err := p.resolve(addr)
	if err != nil {
		return 0, err
	}

	fc := p.conn4
	echoType := icmp.Type(ipv4.ICMPTypeEcho)
	if ip.To4() == nil {
		fc = p.conn6
		echoType = ipv6.ICMPTypeEchoRequest
	}
	if fc == nil {
		return 0, fmt.Errorf("no icmp socket for address family of %s", addr)
	}

	// sequence numbers are 16 bit on the wire
	seq := int(p.seq.Add(1) & 0xffff)
	pe := &pendingEcho{
		ip:    ip,
		sent:  time.Now(),
		reply: make(chan time.Duration, 1),
	}
	_ = fc.pending.Set(seq, pe)
	defer fc.pending.Delete(seq)

	msg := &icmp.Message{
		Type: echoType,
		Code: 0,
		Body: &icmp.Echo{
			ID:   p.echoID,
			Seq:  seq,
			Data: []byte("peerpick-probe"),
		},
	}
	msgBytes, err := msg.Marshal(nil)
	if err != nil {
		return 0, fmt.Errorf("failed to marshal echo request: %w", err)
	}
	if _, err := fc.conn.WriteTo(msgBytes, &net.IPAddr{IP: ip}); err != nil {
		return 0, fmt.Errorf("failed to send echo request to %s: %w", addr, err)
	}

	timer := time.NewTimer(p.timeout)
	defer timer.Stop()
	select {
	case rtt := <-pe.reply:
		return rtt, nil
	case <-timer.C:
		return 0, fmt.Errorf("echo timeout for %s", addr)
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// Close stops the receivers and releases the shared sockets.
func (p *ICMPPinger) Close() {
	for _, fc := range []*familyConn{p.conn4, p.conn6} {
		if fc == nil {
			continue
		}
		close(fc.done)
		_ = fc.conn.Close()
	}
}

func (p *ICMPPinger) resolve(addr string) (net.IP, error) {
	if ip := net.ParseIP(addr); ip != nil {
		return ip, nil
	}
	if ip, err := p.resolved.Get(addr); err == nil && ip != nil {
		return ip, nil
	}
	ipAddr, err := net.ResolveIPAddr("ip", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve %s: %w", addr, err)
	}
	_ = p.resolved.Set(addr, ipAddr.IP)
	return ipAddr.IP, nil
}

// receive matches echo replies back to their pending callers
func (fc *familyConn) receive(echoID int) {
	buf := make([]byte, 1500)
	for {
		select {
		case <-fc.done:
			return
		default:
		}

		if err := fc.conn.SetReadDeadline(time.Now().Add(500 * time.Millisecond)); err != nil {
			continue
		}
		n, peer, err := fc.conn.ReadFrom(buf)
		if err != nil {
			continue
		}

		rm, err := icmp.ParseMessage(fc.proto, buf[:n])
		if err != nil || rm.Type != fc.reply {
			continue
		}
		echo, ok := rm.Body.(*icmp.Echo)
		if !ok || echo.ID != echoID {
			continue
		}
		pe, exists := fc.pending.Get(echo.Seq)
		if !exists {
			continue
		}
		if peerAddr, ok := peer.(*net.IPAddr); !ok || !peerAddr.IP.Equal(pe.ip) {
			continue
		}

		select {
		case pe.reply <- time.Since(pe.sent):
		default:
		}
		fc.pending.Delete(echo.Seq)
	}
}
