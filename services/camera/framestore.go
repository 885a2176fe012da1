package camera

import (
	"bytes"

	"quizcam-go/errcode"
)

// DefaultFrameStoreSize is the capture arena in bytes.
const DefaultFrameStoreSize = 100000

var eoi = []byte{0xFF, 0xD9}

// FrameStore is the fixed capture arena. The capture peripheral fills it as
// two equal halves; readers see it as one contiguous buffer.
type FrameStore struct {
	buf  []byte
	half int
}

// NewFrameStore allocates size bytes, rounded down to an even count.
func NewFrameStore(size int) *FrameStore {
	if size < 2 {
		size = 2
	}
	size &^= 1
	return &FrameStore{buf: make([]byte, size), half: size / 2}
}

func (s *FrameStore) Cap() int      { return len(s.buf) }
func (s *FrameStore) HalfSize() int { return s.half }

// Halves returns the two transfer targets.
func (s *FrameStore) Halves() (a, b []byte) {
	return s.buf[:s.half:s.half], s.buf[s.half:]
}

// Clear zeroes the arena so a stale frame cannot be mistaken for a new one.
func (s *FrameStore) Clear() { clear(s.buf) }

// FindEOI returns the length of the image in buf: the offset just past the
// first FF D9. ok is false when no marker exists.
func FindEOI(buf []byte) (n int, ok bool) {
	i := bytes.Index(buf, eoi)
	if i < 0 {
		return 0, false
	}
	return i + len(eoi), true
}

// Frame returns the image currently in the arena, up to and including the
// end-of-image marker. The slice aliases the arena and is only valid until
// the next capture.
func (s *FrameStore) Frame() ([]byte, error) {
	n, ok := FindEOI(s.buf)
	if !ok {
		return nil, &errcode.E{C: errcode.NoEndMarker, Op: "framestore.frame"}
	}
	return s.buf[:n], nil
}
