package webchannel

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/kdevan/gchat-bridge/wire"
)

// Frame is one decoded chunk of the long-poll stream: [ack-id, eventPayload]
// (§4.8).
type Frame struct {
	AckID   int64
	Payload wire.Value
}

// FrameReader decodes the connected stream's framing: each chunk is
// `<decimalLength>\n<jsonArray>`, decimalLength counting the bytes of the
// JSON array that follows (§4.8).
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r for framed-chunk reading.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 32*1024)}
}

// ReadChunk reads exactly one `<decimalLength>\n<jsonArray>` chunk and
// returns its parsed JSON array elements, each of which is expected to be an
// [ack-id, eventPayload] pair (§4.8). Returns io.EOF when the stream ends
// cleanly between chunks.
func (f *FrameReader) ReadChunk() ([]Frame, error) {
	lengthLine, err := f.r.ReadString('\n')
	if err != nil {
		return nil, err
	}
	lengthLine = trimTrailingCR(lengthLine[:len(lengthLine)-1])
	if lengthLine == "" {
		return f.ReadChunk() // tolerate a blank keepalive line between chunks
	}

	n, err := strconv.Atoi(lengthLine)
	if err != nil {
		return nil, fmt.Errorf("webchannel: malformed chunk length %q: %w", lengthLine, err)
	}

	buf := make([]byte, n)
	if _, err := io.ReadFull(f.r, buf); err != nil {
		return nil, fmt.Errorf("webchannel: read chunk body (%d bytes): %w", n, err)
	}

	var rawElements []json.RawMessage
	if err := json.Unmarshal(buf, &rawElements); err != nil {
		return nil, fmt.Errorf("webchannel: parse chunk body: %w", err)
	}

	frames := make([]Frame, 0, len(rawElements))
	for _, raw := range rawElements {
		var pair []json.RawMessage
		if err := json.Unmarshal(raw, &pair); err != nil || len(pair) < 2 {
			continue
		}
		var ackID int64
		if err := json.Unmarshal(pair[0], &ackID); err != nil {
			continue
		}
		msg, err := wire.ParseMessage(pair[1])
		if err != nil {
			continue
		}
		frames = append(frames, Frame{AckID: ackID, Payload: msg})
	}
	return frames, nil
}

func trimTrailingCR(s string) string {
	if len(s) > 0 && s[len(s)-1] == '\r' {
		return s[:len(s)-1]
	}
	return s
}
