package pubsync

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-chronosync/codec"
)

func TestSyncRequestEncoding(t *testing.T) {
	req := SyncRequest{Digest: bytes.Repeat([]byte{0xab}, 32)}
	buf, err := codec.Encode(&req)
	require.NoError(t, err)
	var decoded SyncRequest
	require.NoError(t, codec.Decode(buf, &decoded))
	require.Equal(t, req, decoded)

	_, err = codec.Encode(&SyncRequest{Digest: make([]byte, maxDigestSize+1)})
	require.Error(t, err)
}

func TestSyncResponseEncoding(t *testing.T) {
	resp := SyncResponse{
		Requested: bytes.Repeat([]byte{1}, 32),
		Digest:    bytes.Repeat([]byte{2}, 32),
		States:    []ClientState{{Client: 1, Message: 10}, {Client: 2, Message: 20}},
	}
	buf, err := codec.Encode(&resp)
	require.NoError(t, err)
	var decoded SyncResponse
	require.NoError(t, codec.Decode(buf, &decoded))
	require.Equal(t, resp, decoded)

	require.Error(t, codec.Decode(buf[:len(buf)-1], &decoded))
}
