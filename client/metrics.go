// Copyright (C) 2026 The mbus Authors. All Rights Reserved.

package client

import "expvar"

// clientMetrics record client activity counters.
type clientMetrics struct {
	frameRecv     expvar.Int
	frameDropped  expvar.Int // frames of unknown type
	msgDelivered  expvar.Int // messages passed to the handler without error
	decodeFailed  expvar.Int
	handlerFailed expvar.Int

	emap *expvar.Map
}

func newClientMetrics() *clientMetrics {
	cm := &clientMetrics{emap: new(expvar.Map)}
	cm.emap.Set("frames_received", &cm.frameRecv)
	cm.emap.Set("frames_dropped", &cm.frameDropped)
	cm.emap.Set("messages_delivered", &cm.msgDelivered)
	cm.emap.Set("decode_failed", &cm.decodeFailed)
	cm.emap.Set("handler_failed", &cm.handlerFailed)
	return cm
}
