package worker

import (
	"time"

	"github.com/erparts/avplay/internal/avtype"
)

// reader is the subset of container.Container the Read Worker drives.
type reader interface {
	Read() (avtype.MediaKind, error)
	ShouldReadMore(isLive, isNetwork bool, networkBufferLength, networkHardCapBytes int) bool
}

// NetworkState reports the live network-buffering figures the Read Worker's
// gate needs; Engine fills BufferLength from the current packet-queue
// accounting each time the Read Worker asks.
type NetworkState struct {
	IsLive       bool
	IsNetwork    bool
	BufferLength int
	HardCapBytes int
}

// ReadWorker pulls packets from the container into component queues. It
// ticks on a short interval and reads zero or more times per tick depending
// on ShouldReadMore, rather than blocking tightly in a busy loop.
type ReadWorker struct {
	base
	c       reader
	network func() NetworkState
	onError func(error)
}

// NewReadWorker builds a Read Worker over c. network supplies the current
// live/network-buffering state on each tick (Engine owns that bookkeeping).
func NewReadWorker(c reader, network func() NetworkState, onError func(error)) *ReadWorker {
	return &ReadWorker{base: newBase(), c: c, network: network, onError: onError}
}

// Start launches the worker's loop; it begins in the Created state and does
// nothing until Resume() is called.
func (w *ReadWorker) Start(tick time.Duration) {
	w.run(tick, w.cycle, w.onError)
}

func (w *ReadWorker) cycle() error {
	ns := NetworkState{}
	if w.network != nil {
		ns = w.network()
	}
	for w.c.ShouldReadMore(ns.IsLive, ns.IsNetwork, ns.BufferLength, ns.HardCapBytes) {
		if w.cancelled() {
			return nil
		}
		if _, err := w.c.Read(); err != nil {
			return err
		}
	}
	return nil
}
