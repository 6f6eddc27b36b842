package protocol

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/pierrec/lz4/v4"
	"github.com/vmihailenco/msgpack/v5"

	"starfall-server/match"
)

// Binary frame kinds, first byte of every binary message
const (
	FrameMap byte = 0x01
)

// MaxFrameBytes caps a decompressed binary frame
const MaxFrameBytes = 8 << 20

// Encode marshals a JSON envelope
func Encode(t string, payload any) ([]byte, error) {
	if t == "" {
		return nil, errors.New("encode: empty message type")
	}
	return json.Marshal(Envelope{T: t, Data: payload})
}

// DecodeEnvelope parses an incoming JSON envelope
func DecodeEnvelope(b []byte) (InEnvelope, error) {
	if len(b) == 0 {
		return InEnvelope{}, errors.New("decode: empty message")
	}
	var env InEnvelope
	if err := json.Unmarshal(b, &env); err != nil {
		return InEnvelope{}, fmt.Errorf("decode envelope: %w", err)
	}
	return env, nil
}

// DecodePayload unmarshals the envelope body into T
func DecodePayload[T any](env InEnvelope) (T, error) {
	var out T
	if len(env.D) == 0 {
		return out, fmt.Errorf("empty payload for type %q", env.T)
	}
	err := json.Unmarshal(env.D, &out)
	return out, err
}

// EncodeMapFrame packs a map as msgpack, compressed with lz4, behind the
// FrameMap kind byte
func EncodeMapFrame(mp match.MapPublished) ([]byte, error) {
	raw, err := msgpack.Marshal(mp)
	if err != nil {
		return nil, fmt.Errorf("marshal map: %w", err)
	}
	var buf bytes.Buffer
	buf.WriteByte(FrameMap)
	zw := lz4.NewWriter(&buf)
	if _, err := zw.Write(raw); err != nil {
		return nil, fmt.Errorf("compress map: %w", err)
	}
	if err := zw.Close(); err != nil {
		return nil, fmt.Errorf("compress map: %w", err)
	}
	return buf.Bytes(), nil
}

// DecodeMapFrame reverses EncodeMapFrame
func DecodeMapFrame(frame []byte) (match.MapPublished, error) {
	var mp match.MapPublished
	if len(frame) < 2 || frame[0] != FrameMap {
		return mp, errors.New("decode map: not a map frame")
	}
	zr := lz4.NewReader(bytes.NewReader(frame[1:]))
	raw, err := io.ReadAll(io.LimitReader(zr, MaxFrameBytes+1))
	if err != nil {
		return mp, fmt.Errorf("decompress map: %w", err)
	}
	if len(raw) > MaxFrameBytes {
		return mp, fmt.Errorf("decode map: frame exceeds %d bytes", MaxFrameBytes)
	}
	if err := msgpack.Unmarshal(raw, &mp); err != nil {
		return mp, fmt.Errorf("unmarshal map: %w", err)
	}
	return mp, nil
}

// FrameCache holds the last encoded map frame, so a MapPublished fanned out
// to many connections is compressed once. Every state change bumps the
// version, so one version always maps to one snapshot.
type FrameCache struct {
	mu      sync.Mutex
	matchID string
	version uint64
	frame   []byte
}

// Frame returns the encoded frame for mp, reusing the cached one when mp is
// the same match and version. The returned slice must not be modified.
func (fc *FrameCache) Frame(mp match.MapPublished) ([]byte, error) {
	fc.mu.Lock()
	defer fc.mu.Unlock()
	if fc.frame != nil && fc.version == mp.Version && fc.matchID == mp.Snapshot.MatchID {
		return fc.frame, nil
	}
	frame, err := EncodeMapFrame(mp)
	if err != nil {
		return nil, err
	}
	fc.matchID, fc.version, fc.frame = mp.Snapshot.MatchID, mp.Version, frame
	return frame, nil
}

// FromNotification maps a bus notification to its JSON envelope type
func FromNotification(n match.Notification) (Envelope, bool) {
	switch v := n.(type) {
	case match.StarChanged:
		return Envelope{T: MsgStar, Data: v}, true
	case match.MapPublished:
		return Envelope{T: MsgMap, Data: v}, true
	case match.ResourceUpdated:
		return Envelope{T: MsgRes, Data: v}, true
	case match.BonusUpdated:
		return Envelope{T: MsgBonus, Data: v}, true
	case match.MatchEnded:
		return Envelope{T: MsgEnded, Data: v}, true
	}
	return Envelope{}, false
}

// ToNotification decodes an incoming envelope carrying a notification.
// ok is false for envelopes of any other type.
func ToNotification(env InEnvelope) (n match.Notification, ok bool, err error) {
	switch env.T {
	case MsgStar:
		n, err = DecodePayload[match.StarChanged](env)
	case MsgMap:
		n, err = DecodePayload[match.MapPublished](env)
	case MsgRes:
		n, err = DecodePayload[match.ResourceUpdated](env)
	case MsgBonus:
		n, err = DecodePayload[match.BonusUpdated](env)
	case MsgEnded:
		n, err = DecodePayload[match.MatchEnded](env)
	default:
		return nil, false, nil
	}
	return n, true, err
}
