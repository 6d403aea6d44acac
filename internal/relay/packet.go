// ABOUTME: CBOR relay packet carrying one broadcast message between nodes
// ABOUTME: Deterministic encoding so identical packets fingerprint identically

package relay

import (
	"encoding/hex"
	"fmt"
	"time"

	"github.com/fxamacker/cbor/v2"
	"github.com/zeebo/blake3"

	"github.com/2389/hvac-mesh/internal/agent"
)

// Packet is the relay wire format.
type Packet struct {
	Node       string     `cbor:"node"`
	From       string     `cbor:"from"`
	EnvelopeID string     `cbor:"envelope_id"`
	SentAt     int64      `cbor:"sent_at"` // unix nanoseconds
	Message    agent.Wire `cbor:"message"`
}

var (
	encMode cbor.EncMode
	decMode cbor.DecMode
)

func init() {
	var err error
	encMode, err = cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic("relay: CBOR encoder initialization failed: " + err.Error())
	}
	decMode, err = cbor.DecOptions{}.DecMode()
	if err != nil {
		panic("relay: CBOR decoder initialization failed: " + err.Error())
	}
}

func newPacket(node string, env agent.Envelope) Packet {
	return Packet{
		Node:       node,
		From:       env.From,
		EnvelopeID: env.ID.String(),
		SentAt:     env.SentAt.UnixNano(),
		Message:    agent.ToWire(env.Msg),
	}
}

// Encode serializes p.
func (p Packet) Encode() ([]byte, error) {
	data, err := encMode.Marshal(p)
	if err != nil {
		return nil, fmt.Errorf("encoding relay packet: %w", err)
	}
	return data, nil
}

// DecodePacket parses a relay packet.
func DecodePacket(data []byte) (Packet, error) {
	var p Packet
	if err := decMode.Unmarshal(data, &p); err != nil {
		return Packet{}, fmt.Errorf("decoding relay packet: %w", err)
	}
	return p, nil
}

// Time returns the packet's send time.
func (p Packet) Time() time.Time {
	return time.Unix(0, p.SentAt).UTC()
}

// Fingerprint is the hex BLAKE3-256 digest of an encoded packet.
func Fingerprint(data []byte) string {
	sum := blake3.Sum256(data)
	return hex.EncodeToString(sum[:])
}
