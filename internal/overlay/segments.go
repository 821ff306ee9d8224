package overlay

import (
	"fmt"
	"strings"
)

// SegmentKind distinguishes literal text from typeset math.
type SegmentKind int

const (
	Text SegmentKind = iota
	InlineMath
	BlockMath
)

var segmentKindNames = [...]string{"text", "inline", "block"}

func (k SegmentKind) String() string {
	if int(k) < len(segmentKindNames) {
		return segmentKindNames[k]
	}
	return fmt.Sprintf("segment(%d)", int(k))
}

// MarshalText implements encoding.TextMarshaler.
func (k SegmentKind) MarshalText() ([]byte, error) {
	return []byte(k.String()), nil
}

// UnmarshalText implements encoding.TextUnmarshaler.
func (k *SegmentKind) UnmarshalText(b []byte) error {
	for i, name := range segmentKindNames {
		if name == string(b) {
			*k = SegmentKind(i)
			return nil
		}
	}
	return fmt.Errorf("unknown segment kind %q", b)
}

// Segment is a run of answer text. Math segments exclude their delimiters.
type Segment struct {
	Kind SegmentKind `json:"kind"`
	Text string      `json:"text"`
}

var delimiters = []struct {
	open, close string
	kind        SegmentKind
}{
	{`\(`, `\)`, InlineMath},
	{`\[`, `\]`, BlockMath},
}

// Segments splits s on \( … \) and \[ … \] delimiters. A delimiter without its
// closing partner stays literal text, which is what a half-streamed answer
// looks like.
func Segments(s string) []Segment {
	var out []Segment
	literal := func(text string) {
		if text == "" {
			return
		}
		if n := len(out); n > 0 && out[n-1].Kind == Text {
			out[n-1].Text += text
			return
		}
		out = append(out, Segment{Kind: Text, Text: text})
	}
	for s != "" {
		start, di := -1, -1
		for i, d := range delimiters {
			if at := strings.Index(s, d.open); at >= 0 && (start < 0 || at < start) {
				start, di = at, i
			}
		}
		if start < 0 {
			literal(s)
			break
		}
		d := delimiters[di]
		body := s[start+len(d.open):]
		end := strings.Index(body, d.close)
		if end < 0 {
			literal(s)
			break
		}
		literal(s[:start])
		out = append(out, Segment{Kind: d.kind, Text: body[:end]})
		s = body[end+len(d.close):]
	}
	return out
}
