package pubsync

import (
	"cmp"
	"encoding/binary"
	"fmt"

	"github.com/spacemeshos/go-scale"
	"go.uber.org/zap/zapcore"

	"github.com/spacemeshos/go-chronosync/chronosync"
)

// ClientStateSize is the size of the serialized ClientState that is fed into the digest.
const ClientStateSize = 16

// ClientState is the latest message number published by a client. States of the same
// client match each other, and the one with the higher message number is newer.
type ClientState struct {
	Client  uint64
	Message uint64
}

var _ chronosync.State = ClientState{}

// Matches implements chronosync.State.
func (s ClientState) Matches(other chronosync.State) bool {
	o, ok := asClientState(other)
	return ok && o.Client == s.Client
}

// Compare implements chronosync.State.
func (s ClientState) Compare(other chronosync.State) int {
	o, ok := asClientState(other)
	if !ok || o.Client != s.Client {
		return 0
	}
	return cmp.Compare(s.Message, o.Message)
}

// Bytes implements chronosync.State: client and message as big endian uint64.
func (s ClientState) Bytes() []byte {
	b := make([]byte, 0, ClientStateSize)
	b = binary.BigEndian.AppendUint64(b, s.Client)
	return binary.BigEndian.AppendUint64(b, s.Message)
}

func (s ClientState) String() string {
	return fmt.Sprintf("%016x/%d", s.Client, s.Message)
}

// MarshalLogObject implements zapcore.ObjectMarshaler.
func (s ClientState) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("client", fmt.Sprintf("%016x", s.Client))
	enc.AddUint64("message", s.Message)
	return nil
}

// EncodeScale implements scale.Encodable.
func (s *ClientState) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeCompact64(enc, s.Client)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeCompact64(enc, s.Message)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale.Decodable.
func (s *ClientState) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		s.Client = field
	}
	{
		field, n, err := scale.DecodeCompact64(dec)
		if err != nil {
			return total, err
		}
		total += n
		s.Message = field
	}
	return total, nil
}

func asClientState(s chronosync.State) (ClientState, bool) {
	switch v := s.(type) {
	case ClientState:
		return v, true
	case *ClientState:
		if v == nil {
			return ClientState{}, false
		}
		return *v, true
	default:
		return ClientState{}, false
	}
}

// ClientStates converts the states of a synchronizer that only carries ClientStates.
// States of other types are skipped.
func ClientStates(ss []chronosync.State) []ClientState {
	r := make([]ClientState, 0, len(ss))
	for _, s := range ss {
		if cs, ok := asClientState(s); ok {
			r = append(r, cs)
		}
	}
	return r
}

// States converts client states to synchronizer states.
func States(cs []ClientState) []chronosync.State {
	r := make([]chronosync.State, len(cs))
	for i, s := range cs {
		r[i] = s
	}
	return r
}
