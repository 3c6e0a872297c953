package demux

import (
	"bytes"
	"encoding/binary"
	"strings"
)

// Frame layout of the Docker exec-attach stream: an 8-byte header whose
// first byte is the stream kind and whose bytes [4:8) are the big-endian
// payload length, followed by the payload.
const (
	headerLen  = 8
	sizeOffset = 4

	// Stream kinds carried in the first header byte.
	StreamStdin  = 0
	StreamStdout = 1
	StreamStderr = 2
)

type state int

const (
	stateHeader state = iota
	statePayload
)

// Decode concatenates the payloads of every complete frame in raw,
// regardless of stream kind, and returns the result as UTF-8 with
// surrounding whitespace trimmed. Truncated trailing bytes, a partial
// header or a payload shorter than its declared length, are silently
// dropped.
func Decode(raw []byte) string {
	var out bytes.Buffer

	st := stateHeader
	var payloadLen int
	for i := 0; i < len(raw); {
		switch st {
		case stateHeader:
			if len(raw)-i < headerLen {
				i = len(raw)
				continue
			}
			payloadLen = int(binary.BigEndian.Uint32(raw[i+sizeOffset : i+headerLen]))
			i += headerLen
			st = statePayload
		case statePayload:
			if len(raw)-i < payloadLen {
				i = len(raw)
				continue
			}
			out.Write(raw[i : i+payloadLen])
			i += payloadLen
			st = stateHeader
		}
	}

	return strings.TrimSpace(out.String())
}
