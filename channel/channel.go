// Package channel implements capone's framed transport: a connected
// socket carrying fixed-size blocks, optionally protected by
// per-direction authenticated encryption. Above the block framing it
// exposes byte-oriented and message-oriented read/write, plus a relay
// pump used by streaming plugins.
//
// A Channel is not safe for concurrent use by multiple goroutines: at
// most one goroutine may hold it mutably at a time, except for Relay,
// which owns the channel exclusively for its lifetime and is free to
// multiplex internally.
package channel

import (
	"encoding/binary"
	"io"
	"net"
	"sync"

	"github.com/capone-project/capone/crypto"
	"github.com/capone-project/capone/errs"
	"github.com/capone-project/capone/identity"
	"github.com/capone-project/capone/wire"
)

// Kind distinguishes the two transports a Channel can run over.
type Kind int

const (
	KindStream Kind = iota
	KindDatagram
)

const (
	// MinBlockLen is the smallest usable block length: enough for
	// framing plus the AEAD overhead.
	MinBlockLen = 40
	// MaxBlockLen is the largest block length a Channel accepts.
	MaxBlockLen = 4096
	// DefaultBlockLen is used when a caller does not override B.
	DefaultBlockLen = 512

	// lengthPrefixSize is the size of the big-endian total-payload
	// length carried at the start of block 0.
	lengthPrefixSize = 4

	// maxMessageSize bounds read_message's implicit max, generous
	// enough for a capability chain many entries deep.
	maxMessageSize = 1 << 20
)

// Channel is a connected socket plus its framing and crypto state.
type Channel struct {
	conn     net.Conn
	kind     Kind
	blockLen int

	encrypted   bool
	key         identity.SymmetricKey
	localNonce  [crypto.NonceSize]byte
	remoteNonce [crypto.NonceSize]byte

	relayWriteMu sync.Mutex
}

// New wraps conn in a Channel with the given transport kind and block
// length. blockLen must be in [MinBlockLen, MaxBlockLen]; passing 0
// selects DefaultBlockLen.
func New(conn net.Conn, kind Kind, blockLen int) (*Channel, error) {
	if blockLen == 0 {
		blockLen = DefaultBlockLen
	}
	if blockLen < MinBlockLen || blockLen > MaxBlockLen {
		return nil, errs.New(errs.Invalid, "channel: block length out of range")
	}
	return &Channel{conn: conn, kind: kind, blockLen: blockLen}, nil
}

// BlockLen returns the channel's configured block length B.
func (c *Channel) BlockLen() int { return c.blockLen }

// Conn returns the underlying socket, e.g. for a plugin that wants to
// set a deadline or hand the fd to a relay.
func (c *Channel) Conn() net.Conn { return c.conn }

// Close closes the underlying connection.
func (c *Channel) Close() error { return c.conn.Close() }

// EnableSymmetric switches the channel into authenticated-encryption
// mode, per the handshake's nonce assignment (initiator:
// local=0, remote=1; responder: local=1, remote=0).
func (c *Channel) EnableSymmetric(key identity.SymmetricKey, localStart, remoteStart uint8) {
	c.encrypted = true
	c.key = key
	c.localNonce = [crypto.NonceSize]byte{}
	c.remoteNonce = [crypto.NonceSize]byte{}
	c.localNonce[crypto.NonceSize-1] = localStart
	c.remoteNonce[crypto.NonceSize-1] = remoteStart
}

// stepNonce increments a 24-byte big-endian counter by 2, matching
// both endpoints' fixed +2 step so they never collide mid-stream.
func stepNonce(n *[crypto.NonceSize]byte) {
	carry := uint16(2)
	for i := len(n) - 1; i >= 0 && carry != 0; i-- {
		sum := uint16(n[i]) + carry
		n[i] = byte(sum)
		carry = sum >> 8
	}
}

// plaintextCapacity is the payload bytes a single wire block can carry.
func (c *Channel) plaintextCapacity() int {
	if c.encrypted {
		return c.blockLen - crypto.Overhead
	}
	return c.blockLen
}

func (c *Channel) writeBlock(plain []byte) error {
	if c.encrypted {
		key := c.key
		nonce := c.localNonce
		ct := crypto.Seal(nil, plain, &nonce, (*[32]byte)(&key))
		stepNonce(&c.localNonce)
		if len(ct) != c.blockLen {
			return errs.New(errs.Protocol, "channel: unexpected ciphertext block length")
		}
		_, err := c.conn.Write(ct)
		if err != nil {
			return errs.Wrap(errs.Io, "channel: write block", err)
		}
		return nil
	}
	_, err := c.conn.Write(plain)
	if err != nil {
		return errs.Wrap(errs.Io, "channel: write block", err)
	}
	return nil
}

func (c *Channel) readBlock() ([]byte, error) {
	wireBuf := make([]byte, c.blockLen)
	if _, err := io.ReadFull(c.conn, wireBuf); err != nil {
		return nil, errs.Wrap(errs.Io, "channel: read block", err)
	}
	if !c.encrypted {
		return wireBuf, nil
	}
	nonce := c.remoteNonce
	key := c.key
	plain, err := crypto.Open(nil, wireBuf, &nonce, (*[32]byte)(&key))
	if err != nil {
		// Decryption failure is fatal to the channel.
		_ = c.conn.Close()
		return nil, errs.Wrap(errs.Crypto, "channel: decrypt block", err)
	}
	stepNonce(&c.remoteNonce)
	return plain, nil
}

// WriteBytes frames and sends payload as a sequence of blocks.
func (c *Channel) WriteBytes(payload []byte) error {
	capacity := c.plaintextCapacity()

	framed := make([]byte, lengthPrefixSize+len(payload))
	binary.BigEndian.PutUint32(framed[:lengthPrefixSize], uint32(len(payload)))
	copy(framed[lengthPrefixSize:], payload)

	for offset := 0; offset < len(framed); offset += capacity {
		end := offset + capacity
		if end > len(framed) {
			end = len(framed)
		}
		block := make([]byte, capacity)
		copy(block, framed[offset:end])
		if err := c.writeBlock(block); err != nil {
			return err
		}
		if end == len(framed) {
			break
		}
	}
	return nil
}

// ReadBytes reads a framed payload and fails with an Invalid error if
// its declared length exceeds max. The bound is enforced as soon as
// block 0's length prefix is known, before any further block is read.
func (c *Channel) ReadBytes(max int) ([]byte, error) {
	first, err := c.readBlock()
	if err != nil {
		return nil, err
	}
	if len(first) < lengthPrefixSize {
		return nil, errs.New(errs.Protocol, "channel: block shorter than length prefix")
	}
	total := int(binary.BigEndian.Uint32(first[:lengthPrefixSize]))
	if total > max {
		return nil, errs.New(errs.Invalid, "channel: payload length exceeds bound")
	}

	out := make([]byte, 0, total)
	chunk := first[lengthPrefixSize:]
	if len(chunk) > total {
		chunk = chunk[:total]
	}
	out = append(out, chunk...)

	for len(out) < total {
		block, err := c.readBlock()
		if err != nil {
			return nil, err
		}
		remaining := total - len(out)
		if len(block) > remaining {
			block = block[:remaining]
		}
		out = append(out, block...)
	}
	return out, nil
}

// WriteMessage serializes m via its TLV encoding and sends it framed.
func (c *Channel) WriteMessage(m wire.Message) error {
	return c.WriteBytes(m.MarshalTLV())
}

// ReadMessage reads a framed payload and decodes it into m.
func (c *Channel) ReadMessage(m wire.Message) error {
	b, err := c.ReadBytes(maxMessageSize)
	if err != nil {
		return err
	}
	return m.UnmarshalTLV(b)
}

// Relay bidirectionally pumps the channel against fds: bytes received
// from the channel are written to fds[0]; bytes read from any fd are
// framed and sent on the channel. It returns once any side closes.
func (c *Channel) Relay(fds ...io.ReadWriteCloser) error {
	if len(fds) == 0 {
		return errs.New(errs.Invalid, "channel: relay requires at least one descriptor")
	}

	errCh := make(chan error, len(fds)+1)

	// channel -> fds[0]
	go func() {
		for {
			payload, err := c.ReadBytes(maxMessageSize)
			if err != nil {
				errCh <- err
				return
			}
			if _, err := fds[0].Write(payload); err != nil {
				errCh <- errs.Wrap(errs.Io, "channel: relay write to fd", err)
				return
			}
		}
	}()

	// each fd -> channel
	for _, fd := range fds {
		fd := fd
		go func() {
			buf := make([]byte, c.plaintextCapacity())
			for {
				n, err := fd.Read(buf)
				if n > 0 {
					c.relayWriteMu.Lock()
					werr := c.WriteBytes(buf[:n])
					c.relayWriteMu.Unlock()
					if werr != nil {
						errCh <- werr
						return
					}
				}
				if err != nil {
					errCh <- errs.Wrap(errs.Io, "channel: relay read from fd", err)
					return
				}
			}
		}()
	}

	return <-errCh
}
