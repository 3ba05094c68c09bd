package pubsync

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/spacemeshos/go-chronosync/chronosync"
	"github.com/spacemeshos/go-chronosync/codec"
	"github.com/spacemeshos/go-chronosync/hash"
)

type otherState struct{}

func (otherState) Matches(chronosync.State) bool { return false }
func (otherState) Compare(chronosync.State) int  { return 0 }
func (otherState) Bytes() []byte                 { return nil }

func TestClientStateOrdering(t *testing.T) {
	a1 := ClientState{Client: 1, Message: 1}
	a2 := ClientState{Client: 1, Message: 2}
	b1 := ClientState{Client: 2, Message: 1}

	require.True(t, a1.Matches(a2))
	require.True(t, a1.Matches(&a2))
	require.False(t, a1.Matches(b1))
	require.False(t, a1.Matches(otherState{}))
	require.False(t, a1.Matches((*ClientState)(nil)))

	require.Equal(t, -1, a1.Compare(a2))
	require.Equal(t, 1, a2.Compare(a1))
	require.Zero(t, a1.Compare(a1))
	require.Zero(t, a1.Compare(b1))
	require.Zero(t, a1.Compare(otherState{}))
}

func TestClientStateBytes(t *testing.T) {
	s := ClientState{Client: 0x0102030405060708, Message: 9}
	require.Equal(t, []byte{1, 2, 3, 4, 5, 6, 7, 8, 0, 0, 0, 0, 0, 0, 0, 9}, s.Bytes())
	require.Len(t, s.Bytes(), ClientStateSize)
	require.Equal(t, "0102030405060708/9", s.String())
}

func TestClientStateEncoding(t *testing.T) {
	s := ClientState{Client: 1 << 63, Message: 42}
	buf, err := codec.Encode(&s)
	require.NoError(t, err)
	var decoded ClientState
	require.NoError(t, codec.Decode(buf, &decoded))
	require.Equal(t, s, decoded)
}

func TestClientStatesConversion(t *testing.T) {
	cs := []ClientState{{Client: 1, Message: 2}, {Client: 3, Message: 4}}
	ss := States(cs)
	require.Equal(t, cs, ClientStates(ss))
	require.Equal(t, cs[:1], ClientStates([]chronosync.State{cs[0], otherState{}}))
	require.Equal(t, cs[1:], ClientStates([]chronosync.State{&cs[1]}))
}

func TestClientStatesInTree(t *testing.T) {
	tree, err := chronosync.NewHistoricalDigestTree(chronosync.DefaultHistorySize, hash.SHA256)
	require.NoError(t, err)
	require.True(t, tree.Add(ClientState{Client: 1, Message: 1}, ClientState{Client: 2, Message: 1}))
	require.True(t, tree.Add(ClientState{Client: 1, Message: 3}))
	require.False(t, tree.Add(ClientState{Client: 1, Message: 2}))
	require.ElementsMatch(t,
		[]ClientState{{Client: 1, Message: 3}, {Client: 2, Message: 1}},
		ClientStates(tree.All()))
}
