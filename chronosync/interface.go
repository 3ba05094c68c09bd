package chronosync

//go:generate mockgen -typed -package=chronosync -destination=./mocks.go -source=./interface.go

// Observer is notified about changes of the local set of states, both local updates
// and states merged from peers.
type Observer interface {
	Notify(digest Digest, states []State)
}

// IncomingPendingRequest is a peer's announcement waiting to be answered. Satisfy is
// called, possibly after a delay, with the local digest and the states the peer is
// missing; the transport sends them back to the peer.
type IncomingPendingRequest interface {
	Satisfy(digest Digest, states []State)
}

// OutgoingRequestAction announces the local digest to the peers. The transport
// feeds the answers back through Synchronizer.OnReceivedState.
type OutgoingRequestAction interface {
	Request(digest Digest)
}

// ObserverFunc adapts a function to the Observer interface.
type ObserverFunc func(Digest, []State)

// Notify implements Observer.
func (f ObserverFunc) Notify(digest Digest, states []State) { f(digest, states) }

// PendingRequestFunc adapts a function to the IncomingPendingRequest interface.
type PendingRequestFunc func(Digest, []State)

// Satisfy implements IncomingPendingRequest.
func (f PendingRequestFunc) Satisfy(digest Digest, states []State) { f(digest, states) }

// RequestActionFunc adapts a function to the OutgoingRequestAction interface.
type RequestActionFunc func(Digest)

// Request implements OutgoingRequestAction.
func (f RequestActionFunc) Request(digest Digest) { f(digest) }
