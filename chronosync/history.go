package chronosync

import (
	"github.com/hashicorp/golang-lru/v2/simplelru"
)

// history is a bounded, insertion-ordered log of digests and the state sets that
// produced them. Lookups never refresh an entry, so the oldest logged digest is
// always the first one to be evicted.
type history struct {
	log    *simplelru.LRU[Digest, []State]
	latest Digest
}

func newHistory(size int, onEvict func(Digest)) (*history, error) {
	h := &history{}
	log, err := simplelru.NewLRU[Digest, []State](size, func(d Digest, _ []State) {
		if onEvict != nil {
			onEvict(d)
		}
	})
	if err != nil {
		return nil, err
	}
	h.log = log
	return h, nil
}

// put logs the snapshot under the digest and makes the digest the latest one.
func (h *history) put(d Digest, snapshot []State) {
	h.log.Add(d, snapshot)
	h.latest = d
}

func (h *history) get(d Digest) ([]State, bool) {
	return h.log.Peek(d)
}

func (h *history) contains(d Digest) bool {
	return h.log.Contains(d)
}

func (h *history) len() int {
	return h.log.Len()
}

// digests returns the logged digests, oldest first.
func (h *history) digests() []Digest {
	return h.log.Keys()
}
