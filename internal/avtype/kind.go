// Package avtype holds the small set of shared enumerations used across the
// pipeline (media type, packet kind) so that leaf packages such as
// packetqueue and block don't need to import each other.
package avtype

// MediaKind identifies which stream a packet, frame, block or clock belongs
// to. Reference is only used as a timing-controller selector, never as a
// stream's own kind.
type MediaKind uint8

const (
	Video MediaKind = iota
	Audio
	Subtitle
	Reference // timing-controller selector meaning "the reference clock"
	None      // timing-controller selector meaning "all clocks"
)

func (k MediaKind) String() string {
	switch k {
	case Video:
		return "video"
	case Audio:
		return "audio"
	case Subtitle:
		return "subtitle"
	case Reference:
		return "reference"
	case None:
		return "none"
	default:
		return "unknown"
	}
}

// PacketKind distinguishes ordinary compressed packets from the sentinel
// variants (flush, empty/drain, attached picture).
type PacketKind uint8

const (
	DataPacket PacketKind = iota
	FlushPacket
	EmptyPacket
	AttachedPicturePacket
)
