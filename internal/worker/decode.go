package worker

import (
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/block"
	"github.com/erparts/avplay/internal/component"
	"github.com/erparts/avplay/internal/decoder"
)

// decodeTiming is the subset of timing.Controller the Decode Worker needs:
// the clock position (to decide whether it's safe to evict ahead of a full
// buffer) and whether clocks are disconnected (components then always
// decode in parallel).
type decodeTiming interface {
	GetPosition(now time.Time, selector avtype.MediaKind) time.Duration
	HasDisconnectedClocks() bool
}

// eosSource reports whether the container has observed end of stream: the
// "no more packets can be produced" half of has_decoding_ended.
type eosSource interface {
	AtEOS() bool
}

// DecodeWorker pulls decoded frames out of each component and materializes
// them into that media type's block buffer. Each
// component's buffer is filled in a loop until it's full and playback has
// moved past its midpoint, or until a fill attempt yields nothing more.
// Components decode in parallel (via errgroup) only when use_parallel_decoding
// is set or clocks are disconnected; otherwise they decode serially, since a
// shared clock means their rates of consumption are coupled anyway.
type DecodeWorker struct {
	base
	set         *component.Set
	buffers     map[avtype.MediaKind]*block.Buffer
	timing      decodeTiming
	eos         eosSource
	useParallel bool
	onError     func(error)

	decodingEnded atomic.Bool
}

// NewDecodeWorker builds a Decode Worker over set, materializing frames into
// buffers (one entry per media type present in set). timing and eos may be
// nil, in which case fill loops never evict a full buffer early and
// has_decoding_ended always reports false.
func NewDecodeWorker(set *component.Set, buffers map[avtype.MediaKind]*block.Buffer, timing decodeTiming, eos eosSource, useParallelDecoding bool, onError func(error)) *DecodeWorker {
	return &DecodeWorker{
		base:        newBase(),
		set:         set,
		buffers:     buffers,
		timing:      timing,
		eos:         eos,
		useParallel: useParallelDecoding,
		onError:     onError,
	}
}

// Start launches the worker's loop on the given tick interval; it begins
// Created and does nothing until Resume() is called.
func (w *DecodeWorker) Start(tick time.Duration) {
	w.run(tick, w.cycle, w.onError)
}

// Step executes exactly one decode pass, useful for deterministic tests
// that don't want to depend on the ticker.
func (w *DecodeWorker) Step() error { return w.cycle() }

// HasDecodingEnded reports whether the most recently completed cycle both
// added no blocks to any buffer and found the container at end of stream,
// the signal the Render Worker uses to detect end of playback.
func (w *DecodeWorker) HasDecodingEnded() bool {
	return w.decodingEnded.Load()
}

type decodeJob struct {
	kind avtype.MediaKind
	buf  *block.Buffer
	comp component.Component
}

func (w *DecodeWorker) cycle() error {
	now := time.Now()

	var jobs []decodeJob
	for kind, buf := range w.buffers {
		comp := w.set.Get(kind)
		if comp == nil || buf == nil {
			continue
		}
		jobs = append(jobs, decodeJob{kind: kind, buf: buf, comp: comp})
	}

	parallel := w.useParallel
	if w.timing != nil && w.timing.HasDisconnectedClocks() {
		parallel = true
	}

	var anyAdded bool
	var mu sync.Mutex
	run := func(j decodeJob) error {
		added, err := w.fillBuffer(now, j.kind, j.buf, j.comp)
		if err != nil {
			return err
		}
		if added {
			mu.Lock()
			anyAdded = true
			mu.Unlock()
		}
		return nil
	}

	var err error
	if parallel {
		g, _ := errgroup.WithContext(w.ctx)
		for _, j := range jobs {
			j := j
			g.Go(func() error { return run(j) })
		}
		err = g.Wait()
	} else {
		for _, j := range jobs {
			if e := run(j); e != nil {
				err = e
				break
			}
		}
	}
	if err != nil {
		return err
	}

	w.decodingEnded.Store(!anyAdded && w.eos != nil && w.eos.AtEOS())
	return nil
}

// fillBuffer adds blocks to buf until either it's full and playback has
// moved past its midpoint, or a fill attempt yields nothing more, or the
// worker is cancelled.
func (w *DecodeWorker) fillBuffer(now time.Time, kind avtype.MediaKind, buf *block.Buffer, comp component.Component) (addedAny bool, err error) {
	for {
		if w.cancelled() {
			return addedAny, nil
		}
		if buf.IsFull() {
			pos := time.Duration(0)
			if w.timing != nil {
				pos = w.timing.GetPosition(now, kind)
			}
			if pos <= buf.RangeMidTime() {
				return addedAny, nil
			}
		}

		frame, ferr := comp.ReceiveNextFrame()
		if ferr != nil {
			if errors.Is(ferr, decoder.ErrAgain) || errors.Is(ferr, decoder.ErrEOS) {
				return addedAny, nil
			}
			return addedAny, ferr
		}
		if frame == nil {
			return addedAny, nil
		}

		blk, aerr := buf.Add(frame, comp)
		if aerr != nil {
			return addedAny, aerr
		}
		if blk == nil {
			return addedAny, nil
		}
		addedAny = true
	}
}
