package pubsync

import (
	"github.com/spacemeshos/go-scale"
)

// maxDigestSize bounds the digests accepted from the wire.
const maxDigestSize = 64

// SyncRequest announces the digest of the sender. It is published on the gossip topic
// of the sync group.
type SyncRequest struct {
	Digest []byte
}

// EncodeScale implements scale.Encodable.
func (r *SyncRequest) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, r.Digest, maxDigestSize)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale.Decodable.
func (r *SyncRequest) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeByteSliceWithLimit(dec, maxDigestSize)
		if err != nil {
			return total, err
		}
		total += n
		r.Digest = field
	}
	return total, nil
}

// SyncResponse carries the states the requester is missing, along with the digest
// of the responder. It is sent directly to the requester over a stream.
type SyncResponse struct {
	// Requested is the digest from the SyncRequest being answered.
	Requested []byte
	Digest    []byte
	States    []ClientState
}

// EncodeScale implements scale.Encodable.
func (r *SyncResponse) EncodeScale(enc *scale.Encoder) (total int, err error) {
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, r.Requested, maxDigestSize)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeByteSliceWithLimit(enc, r.Digest, maxDigestSize)
		if err != nil {
			return total, err
		}
		total += n
	}
	{
		n, err := scale.EncodeStructSlice(enc, r.States)
		if err != nil {
			return total, err
		}
		total += n
	}
	return total, nil
}

// DecodeScale implements scale.Decodable.
func (r *SyncResponse) DecodeScale(dec *scale.Decoder) (total int, err error) {
	{
		field, n, err := scale.DecodeByteSliceWithLimit(dec, maxDigestSize)
		if err != nil {
			return total, err
		}
		total += n
		r.Requested = field
	}
	{
		field, n, err := scale.DecodeByteSliceWithLimit(dec, maxDigestSize)
		if err != nil {
			return total, err
		}
		total += n
		r.Digest = field
	}
	{
		field, n, err := scale.DecodeStructSlice[ClientState](dec)
		if err != nil {
			return total, err
		}
		total += n
		r.States = field
	}
	return total, nil
}
