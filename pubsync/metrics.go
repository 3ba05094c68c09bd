package pubsync

import (
	"github.com/spacemeshos/go-chronosync/metrics"
)

const (
	subsystem = "pubsync"

	directionIn  = "in"
	directionOut = "out"

	typeRequest  = "request"
	typeResponse = "response"
)

var (
	messages = metrics.NewCounter(
		"messages_total",
		subsystem,
		"sync messages sent and received",
		[]string{"direction", "type"},
	)
	dropped = metrics.NewCounter(
		"dropped_total",
		subsystem,
		"sync messages dropped",
		[]string{"reason"},
	)

	requestsIn   = messages.WithLabelValues(directionIn, typeRequest)
	requestsOut  = messages.WithLabelValues(directionOut, typeRequest)
	responsesIn  = messages.WithLabelValues(directionIn, typeResponse)
	responsesOut = messages.WithLabelValues(directionOut, typeResponse)

	droppedMalformed   = dropped.WithLabelValues("malformed")
	droppedRateLimited = dropped.WithLabelValues("rate_limited")
	droppedSendFailed  = dropped.WithLabelValues("send_failed")
)
