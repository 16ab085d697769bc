package fanwire

import (
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"unicode/utf8"
)

const (
	// MaxFrameSize limits memory usage on malformed/hostile input.
	MaxFrameSize = 8 << 20 // 8 MiB

	// ChunkSize bounds the event text carried by one frame. JSON escaping
	// grows text at most sixfold, so a chunk plus envelope fits a frame.
	ChunkSize = 1 << 20 // 1 MiB
)

var (
	ErrEmptyFrame    = errors.New("fanwire: empty frame")
	ErrFrameTooLarge = errors.New("fanwire: frame too large")
)

func checkSize(n int) error {
	if n == 0 {
		return ErrEmptyFrame
	}
	if n > MaxFrameSize {
		return fmt.Errorf("%w: %d > %d", ErrFrameTooLarge, n, MaxFrameSize)
	}
	return nil
}

// ReadFrame reads one frame: a big-endian uint32 length, then that many
// bytes of JSON decoded into v.
func ReadFrame(r io.Reader, v any) error {
	var hdr [4]byte
	if _, err := io.ReadFull(r, hdr[:]); err != nil {
		return err
	}
	n := int(binary.BigEndian.Uint32(hdr[:]))
	if err := checkSize(n); err != nil {
		return err
	}

	body := make([]byte, n)
	if _, err := io.ReadFull(r, body); err != nil {
		return fmt.Errorf("fanwire: short frame: %w", err)
	}
	if err := json.Unmarshal(body, v); err != nil {
		return fmt.Errorf("fanwire: bad json: %w", err)
	}
	return nil
}

// WriteFrame writes v as one frame in a single write. Nothing is written
// when v does not fit, so the stream stays usable after ErrFrameTooLarge.
func WriteFrame(w io.Writer, v any) error {
	b, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("fanwire: marshal: %w", err)
	}
	if err := checkSize(len(b)); err != nil {
		return err
	}

	buf := make([]byte, 4+len(b))
	binary.BigEndian.PutUint32(buf[:4], uint32(len(b)))
	copy(buf[4:], b)

	_, err = w.Write(buf)
	return err
}

// splitText cuts s into pieces of at most n bytes without splitting a rune.
// It always returns at least one piece.
func splitText(s string, n int) []string {
	if len(s) <= n {
		return []string{s}
	}
	var out []string
	for len(s) > n {
		cut := n
		for cut > 0 && !utf8.RuneStart(s[cut]) {
			cut--
		}
		if cut == 0 {
			cut = n
		}
		out = append(out, s[:cut])
		s = s[cut:]
	}
	if s != "" {
		out = append(out, s)
	}
	return out
}
