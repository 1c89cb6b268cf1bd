// Package gdbrsp speaks the GDB Remote Serial Protocol to a debug stub
// such as OpenOCD, J-Link GDB Server or qemu's gdbstub. It implements
// just what reconstructing kernel state needs: attach, halt/resume, and
// raw memory reads.
package gdbrsp

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"net"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

var (
	ErrReadFailed      = errors.New("target memory read failed")
	ErrTargetRunning   = errors.New("target is running")
	ErrTooManyAttempts = errors.New("too many transmit attempts")
)

const (
	dialTimeout       = 5 * time.Second
	defaultPacketSize = 256
	maxSendAttempts   = 5
)

// Client is one RSP connection. It is not safe for concurrent use; the
// engine's single-pass model never needs it to be.
type Client struct {
	conn net.Conn
	rdr  *bufio.Reader
	log  *zap.Logger

	ack        bool
	packetSize int
	running    bool
}

// Dial connects to a GDB stub and performs the protocol handshake.
// Stubs halt the target on attach, so the client comes up in the
// stopped state unless the initial status query says otherwise.
func Dial(addr string, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	conn, err := net.DialTimeout("tcp", addr, dialTimeout)
	if err != nil {
		return nil, fmt.Errorf("dial gdb stub %s: %w", addr, err)
	}
	return Attach(conn, log)
}

// Attach runs the protocol handshake over an existing connection.
func Attach(conn net.Conn, log *zap.Logger) (*Client, error) {
	if log == nil {
		log = zap.NewNop()
	}
	c := &Client{
		conn:       conn,
		rdr:        bufio.NewReader(conn),
		log:        log,
		ack:        true,
		packetSize: defaultPacketSize,
	}
	if err := c.handshake(); err != nil {
		conn.Close()
		return nil, err
	}
	return c, nil
}

func (c *Client) handshake() error {
	resp, err := c.exec("qSupported:multiprocess+;swbreak+")
	if err != nil {
		return fmt.Errorf("qSupported: %w", err)
	}
	for _, feature := range strings.Split(string(resp), ";") {
		if v, ok := strings.CutPrefix(feature, "PacketSize="); ok {
			if size, err := strconv.ParseUint(v, 16, 32); err == nil && size > 0 {
				c.packetSize = int(size)
			}
		}
	}

	if resp, err := c.exec("QStartNoAckMode"); err == nil && string(resp) == "OK" {
		c.ack = false
	}

	// Initial run state: stubs answer `?` with the last stop reply.
	status, err := c.exec("?")
	if err != nil {
		return fmt.Errorf("status query: %w", err)
	}
	c.running = len(status) == 0 || (status[0] != 'T' && status[0] != 'S')
	c.log.Debug("gdb stub attached",
		zap.Int("packet_size", c.packetSize),
		zap.Bool("no_ack", !c.ack),
		zap.Bool("running", c.running))
	return nil
}

// Running reports whether the target is executing. The client owns the
// only control channel, so the tracked state stays accurate between
// Resume and Interrupt.
func (c *Client) Running() bool {
	return c.running
}

// Interrupt halts the target (^C on the wire) and waits for the stop
// reply. A no-op when already stopped.
func (c *Client) Interrupt() error {
	if !c.running {
		return nil
	}
	if _, err := c.conn.Write([]byte{0x03}); err != nil {
		return fmt.Errorf("interrupt: %w", err)
	}
	resp, err := c.recv()
	if err != nil {
		return fmt.Errorf("interrupt stop reply: %w", err)
	}
	if len(resp) == 0 || (resp[0] != 'T' && resp[0] != 'S') {
		return fmt.Errorf("unexpected stop reply %q", resp)
	}
	c.running = false
	return nil
}

// Resume lets the target continue. No stop reply is awaited: the target
// keeps running until the next Interrupt.
func (c *Client) Resume() error {
	if c.running {
		return nil
	}
	if err := c.send("c"); err != nil {
		return fmt.Errorf("resume: %w", err)
	}
	c.running = true
	return nil
}

// ReadMemory reads size bytes at addr with `m` packets, chunked to the
// stub's packet size.
func (c *Client) ReadMemory(addr uint64, size int) ([]byte, error) {
	if c.running {
		return nil, ErrTargetRunning
	}
	data := make([]byte, 0, size)
	chunk := (c.packetSize - 4) / 2
	for size > 0 {
		n := size
		if n > chunk {
			n = chunk
		}
		resp, err := c.exec(fmt.Sprintf("m%x,%x", addr+uint64(len(data)), n))
		if err != nil {
			return nil, fmt.Errorf("%w: %v", ErrReadFailed, err)
		}
		if len(resp) >= 1 && resp[0] == 'E' {
			return nil, fmt.Errorf("%w: stub error %s", ErrReadFailed, resp)
		}
		for i := 0; i+1 < len(resp); i += 2 {
			b, err := strconv.ParseUint(string(resp[i:i+2]), 16, 8)
			if err != nil {
				return nil, fmt.Errorf("%w: bad hex in reply", ErrReadFailed)
			}
			data = append(data, byte(b))
		}
		size -= n
	}
	return data, nil
}

// Detach releases the target, resuming it.
func (c *Client) Detach() error {
	resp, err := c.exec("D")
	if err != nil {
		return err
	}
	if string(resp) != "OK" {
		return fmt.Errorf("detach: %q", resp)
	}
	c.running = true
	return nil
}

func (c *Client) Close() error {
	return c.conn.Close()
}

func (c *Client) exec(cmd string) ([]byte, error) {
	if err := c.send(cmd); err != nil {
		return nil, err
	}
	return c.recv()
}

func (c *Client) send(cmd string) error {
	pkt := make([]byte, 0, len(cmd)+4)
	pkt = append(pkt, '$')
	pkt = append(pkt, cmd...)
	sum := checksum([]byte(cmd))
	pkt = append(pkt, '#', hexDigit(sum>>4), hexDigit(sum&0xf))

	for attempt := 0; ; attempt++ {
		c.log.Debug("<- packet", zap.String("data", trimWire(pkt)))
		if _, err := c.conn.Write(pkt); err != nil {
			return err
		}
		if !c.ack {
			return nil
		}
		b, err := c.rdr.ReadByte()
		if err != nil {
			return err
		}
		if b == '+' {
			return nil
		}
		if attempt >= maxSendAttempts {
			return ErrTooManyAttempts
		}
	}
}

func (c *Client) recv() ([]byte, error) {
	for {
		b, err := c.rdr.ReadByte()
		if err != nil {
			return nil, err
		}
		switch b {
		case '+', '-':
			continue
		case '%':
			// Async notification: consume and ignore.
			if err := c.discardPacket(); err != nil {
				return nil, err
			}
			continue
		case '$':
		default:
			continue
		}

		payload, err := c.rdr.ReadBytes('#')
		if err != nil {
			return nil, err
		}
		payload = payload[:len(payload)-1]
		var sum [2]byte
		if _, err := io.ReadFull(c.rdr, sum[:]); err != nil {
			return nil, err
		}
		c.log.Debug("-> packet", zap.String("data", trimWire(payload)))

		if c.ack {
			want := checksum(payload)
			got, err := strconv.ParseUint(string(sum[:]), 16, 8)
			if err != nil || byte(got) != want {
				c.conn.Write([]byte{'-'})
				continue
			}
			c.conn.Write([]byte{'+'})
		}
		return wireDecode(payload), nil
	}
}

func (c *Client) discardPacket() error {
	if _, err := c.rdr.ReadBytes('#'); err != nil {
		return err
	}
	var sum [2]byte
	_, err := io.ReadFull(c.rdr, sum[:])
	return err
}

func checksum(data []byte) byte {
	var sum byte
	for _, b := range data {
		sum += b
	}
	return sum
}

func hexDigit(n byte) byte {
	return "0123456789abcdef"[n]
}

// wireDecode undoes the RSP escaping (0x7d xor) and run-length encoding
// ('*' followed by count+29 repeats of the previous byte).
func wireDecode(data []byte) []byte {
	buf := make([]byte, 0, len(data))
	for i := 0; i < len(data); i++ {
		switch data[i] {
		case '}':
			i++
			if i < len(data) {
				buf = append(buf, data[i]^0x20)
			}
		case '*':
			i++
			if i < len(data) && len(buf) > 0 {
				n := int(data[i]) - 29
				last := buf[len(buf)-1]
				for j := 0; j < n; j++ {
					buf = append(buf, last)
				}
			}
		default:
			buf = append(buf, data[i])
		}
	}
	return buf
}

func trimWire(data []byte) string {
	const max = 64
	if len(data) > max {
		return string(data[:max]) + "..."
	}
	return string(data)
}
