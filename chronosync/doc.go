// Package chronosync implements a network-agnostic digest tree synchronization
// protocol in the spirit of ChronoSync (named-data.net, ICNP 2013).
//
// Every peer holds a set of versioned States. The set is summarized by a Digest;
// peers announce their digests and answer announcements of stale digests with the
// states the announcer is missing. A HistoricalDigestTree keeps the current set and a
// bounded log of the digests it went through, which allows answering with only the
// difference (the complement) when the announced digest is a recent one.
//
// The Synchronizer never touches the network. A transport adapter wires it up:
//
//	sync, err := chronosync.New(chronosync.DefaultConfig(), chronosync.WithLogger(logger))
//	sync.Observe(observer)                 // application callback
//	sync.StartRequesting(announce)         // send our digest to peers
//
//	sync.OnReceivedDigest(digest, request) // a peer announced its digest
//	err = sync.OnReceivedState(digest, ss) // a peer answered our announcement
//	sync.UpdateState(state)                // the application changed a state
package chronosync
