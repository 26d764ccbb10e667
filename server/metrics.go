// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package server

import "expvar"

// serverMetrics record server activity counters.
type serverMetrics struct {
	subActive    expvar.Int // gauge of connected subscribers
	subTotal     expvar.Int // subscribers accepted since start
	msgSent      expvar.Int // messages accepted by Send
	msgUnrouted  expvar.Int // messages sent while no subscriber was connected
	framesSent   expvar.Int
	sendFailed   expvar.Int // forwarding tasks ended by a write failure
	lagEvents    expvar.Int
	msgSkipped   expvar.Int // messages lost by lagging subscribers
	encodeFailed expvar.Int

	emap *expvar.Map
}

func newServerMetrics() *serverMetrics {
	sm := &serverMetrics{emap: new(expvar.Map)}
	sm.emap.Set("subscribers_active", &sm.subActive)
	sm.emap.Set("subscribers_total", &sm.subTotal)
	sm.emap.Set("messages_sent", &sm.msgSent)
	sm.emap.Set("messages_unrouted", &sm.msgUnrouted)
	sm.emap.Set("frames_sent", &sm.framesSent)
	sm.emap.Set("sends_failed", &sm.sendFailed)
	sm.emap.Set("lag_events", &sm.lagEvents)
	sm.emap.Set("messages_skipped", &sm.msgSkipped)
	sm.emap.Set("encode_failed", &sm.encodeFailed)
	return sm
}
