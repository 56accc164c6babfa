package component

import (
	"fmt"
	"time"

	"github.com/erparts/avplay/internal/avtype"
	"github.com/erparts/avplay/internal/packetqueue"
)

// Set aggregates the per-media-type components active for one open media.
type Set struct {
	byKind   map[avtype.MediaKind]Component
	byStream map[int]avtype.MediaKind
}

// NewSet builds a component set from the already-constructed components.
func NewSet(components ...Component) *Set {
	s := &Set{byKind: make(map[avtype.MediaKind]Component), byStream: make(map[int]avtype.MediaKind)}
	for _, c := range components {
		if c == nil {
			continue
		}
		s.byKind[c.Kind()] = c
		s.byStream[c.StreamIndex()] = c.Kind()
	}
	return s
}

// Get returns the component for a media type, or nil.
func (s *Set) Get(kind avtype.MediaKind) Component { return s.byKind[kind] }

// Has reports whether a component of the given kind is present.
func (s *Set) Has(kind avtype.MediaKind) bool {
	_, ok := s.byKind[kind]
	return ok
}

// SendPacket routes a packet to its owning component by stream index,
// returning the media type it was routed to, or an error if no component
// claims that stream.
func (s *Set) SendPacket(p *packetqueue.Packet) (avtype.MediaKind, error) {
	kind, ok := s.byStream[p.StreamIndex]
	if !ok {
		return avtype.None, fmt.Errorf("component: no component for stream index %d", p.StreamIndex)
	}
	s.byKind[kind].SendPacket(p)
	return kind, nil
}

// SendEmptyPacketToAll drains every component once (used at container EOS).
func (s *Set) SendEmptyPacketToAll() {
	for _, c := range s.byKind {
		c.SendEmptyPacket()
	}
}

// Seekable returns the component chosen as the authoritative time source
// for seeks: the non-still-picture video component if present, else audio,
// else nil.
func (s *Set) Seekable() Component {
	if v, ok := s.byKind[avtype.Video]; ok && !v.IsStillPicture() {
		return v
	}
	if a, ok := s.byKind[avtype.Audio]; ok {
		return a
	}
	return nil
}

// BufferState aggregates length, count, count-threshold and duration
// (minimum of component durations, video prioritized on ties) across
// components.
func (s *Set) BufferState() (length, count, countThreshold int, duration time.Duration) {
	first := true
	// video prioritized when present, so visit it first for tie-breaking
	// the reported duration.
	order := []avtype.MediaKind{avtype.Video, avtype.Audio, avtype.Subtitle}
	for _, kind := range order {
		c, ok := s.byKind[kind]
		if !ok {
			continue
		}
		l, cnt, d := c.BufferState()
		length += l
		count += cnt
		cntThreshold, _ := c.Thresholds()
		countThreshold += cntThreshold
		if first || d < duration {
			duration = d
			first = false
		}
	}
	return length, count, countThreshold, duration
}

// HasEnoughPackets reports true iff every component reports enough.
func (s *Set) HasEnoughPackets(rs ReadState) bool {
	for _, c := range s.byKind {
		if !c.HasEnoughPackets(rs) {
			return false
		}
	}
	return true
}

// All returns every component in the set.
func (s *Set) All() []Component {
	out := make([]Component, 0, len(s.byKind))
	for _, c := range s.byKind {
		out = append(out, c)
	}
	return out
}

// DisposeAll disposes every component (used on container close).
func (s *Set) DisposeAll() {
	for _, c := range s.byKind {
		c.Dispose()
	}
}
