// Package gnss turns the receiver's output stream into model updates: a
// splitter separates interleaved NMEA text and vendor binary frames, and a
// router dispatches decoded sentences to the satellite tracker, solution
// state, and (on the base station) the survey monitor.
package gnss

import (
	"bytes"

	"rtklink/internal/venus"
)

// Token is one complete unit from the receiver stream: either a text line
// (Line set, without CR/LF) or a binary frame payload (Frame set).
type Token struct {
	Line  string
	Frame []byte
}

// maxBuffer bounds the splitter's reassembly buffer; anything larger than
// this without a complete token is line noise and gets dropped.
const maxBuffer = 8192

// Splitter incrementally tokenizes the receiver byte stream. NMEA sentences
// and binary frames interleave on the same wire, so it keys off the leading
// byte: '$' starts a text line, 0xA0 starts a binary frame.
type Splitter struct {
	buf []byte
}

func NewSplitter() *Splitter {
	return &Splitter{buf: make([]byte, 0, 512)}
}

// Feed appends raw bytes and returns every complete token they finish.
func (s *Splitter) Feed(p []byte) []Token {
	s.buf = append(s.buf, p...)
	if len(s.buf) > maxBuffer {
		s.buf = s.buf[len(s.buf)-maxBuffer:]
	}

	var out []Token
	for {
		s.skipNoise()
		if len(s.buf) == 0 {
			break
		}

		if s.buf[0] == '$' {
			tok, ok := s.takeLine()
			if !ok {
				break
			}
			out = append(out, tok)
			continue
		}

		tok, ok, resync := s.takeFrame()
		if resync {
			// Bad header or checksum: discard the start byte and rescan.
			s.buf = s.buf[1:]
			continue
		}
		if !ok {
			break
		}
		out = append(out, tok)
	}
	return out
}

// skipNoise drops bytes until a possible token start.
func (s *Splitter) skipNoise() {
	i := 0
	for i < len(s.buf) && s.buf[i] != '$' && s.buf[i] != 0xA0 {
		i++
	}
	if i > 0 {
		s.buf = s.buf[i:]
	}
}

func (s *Splitter) takeLine() (Token, bool) {
	nl := bytes.IndexByte(s.buf, '\n')
	if nl < 0 {
		return Token{}, false
	}
	line := s.buf[:nl]
	s.buf = s.buf[nl+1:]
	line = bytes.TrimRight(line, "\r")
	return Token{Line: string(line)}, true
}

// takeFrame tries to extract a binary frame from the front of the buffer.
// ok=false with resync=false means more bytes are needed; resync=true means
// the front byte cannot start a valid frame.
func (s *Splitter) takeFrame() (tok Token, ok bool, resync bool) {
	if len(s.buf) < 2 {
		return Token{}, false, false
	}
	if s.buf[1] != 0xA1 {
		return Token{}, false, true
	}
	if len(s.buf) < 4 {
		return Token{}, false, false
	}
	plen := int(s.buf[2])<<8 | int(s.buf[3])
	if plen == 0 || plen > venus.MaxPayload {
		return Token{}, false, true
	}
	total := plen + venus.Overhead
	if len(s.buf) < total {
		return Token{}, false, false
	}

	payload, err := venus.DecodeFrame(s.buf[:total])
	if err != nil {
		return Token{}, false, true
	}
	out := append([]byte(nil), payload...)
	s.buf = s.buf[total:]
	return Token{Frame: out}, true, false
}
