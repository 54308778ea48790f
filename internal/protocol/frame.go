// Package protocol implements the wire framing used between cattleshed
// and its clients: one command per line, `NAME LEN:PAYLOAD\n`, with the
// payload quoted-printable encoded so arbitrary bytes (including LF) can
// ride inside a length-delimited, still line-oriented frame.
package protocol

import (
	"bufio"
	"bytes"
	"io"
	"mime/quotedprintable"
	"strconv"

	"github.com/mmizutani/wandbox/pkg/errors"
)

// Frame is one decoded command/payload pair read off the wire.
type Frame struct {
	Command string
	Data    []byte
}

// EncodeFrame renders cmd/data as a wire-ready line, quoted-printable
// encoding data and prefixing it with the encoded length.
func EncodeFrame(cmd string, data []byte) ([]byte, error) {
	var qp bytes.Buffer
	w := quotedprintable.NewWriter(&qp)
	w.Binary = true
	if _, err := w.Write(data); err != nil {
		return nil, errors.Wrap(err, errors.ProtocolFramingError)
	}
	if err := w.Close(); err != nil {
		return nil, errors.Wrap(err, errors.ProtocolFramingError)
	}

	var out bytes.Buffer
	out.WriteString(cmd)
	out.WriteByte(' ')
	out.WriteString(strconv.Itoa(qp.Len()))
	out.WriteByte(':')
	out.Write(qp.Bytes())
	out.WriteByte('\n')
	return out.Bytes(), nil
}

// FrameReader decodes frames off a buffered byte stream, one at a time.
type FrameReader struct {
	r *bufio.Reader
}

// NewFrameReader wraps r for frame-at-a-time decoding.
func NewFrameReader(r io.Reader) *FrameReader {
	return &FrameReader{r: bufio.NewReaderSize(r, 4096)}
}

// ReadFrame reads and decodes the next frame. It returns io.EOF when the
// underlying stream is exhausted cleanly between frames.
func (fr *FrameReader) ReadFrame() (Frame, error) {
	cmd, err := fr.readCommand()
	if err != nil {
		return Frame{}, err
	}

	lenStr, err := fr.r.ReadString(':')
	if err != nil {
		return Frame{}, errors.Wrap(err, errors.ProtocolFramingError)
	}
	lenStr = lenStr[:len(lenStr)-1]
	n, err := strconv.Atoi(lenStr)
	if err != nil || n < 0 {
		return Frame{}, errors.Newf(errors.ProtocolFramingError, "bad frame length %q", lenStr)
	}

	encoded := make([]byte, n)
	if _, err := io.ReadFull(fr.r, encoded); err != nil {
		return Frame{}, errors.Wrap(err, errors.ProtocolFramingError)
	}

	eol, err := fr.r.ReadByte()
	if err != nil {
		return Frame{}, errors.Wrap(err, errors.ProtocolFramingError)
	}
	if eol != '\n' {
		return Frame{}, errors.Newf(errors.ProtocolFramingError, "frame not newline-terminated")
	}

	data, err := io.ReadAll(quotedprintable.NewReader(bytes.NewReader(encoded)))
	if err != nil {
		return Frame{}, errors.Wrap(err, errors.ProtocolFramingError)
	}

	return Frame{Command: cmd, Data: data}, nil
}

// isFrameSpace reports whether b is one of the whitespace bytes the
// frame grammar allows between command and length.
func isFrameSpace(b byte) bool {
	return b == ' ' || b == '\t'
}

// readCommand reads the non-whitespace command token and then consumes
// the one-or-more whitespace bytes the grammar requires after it,
// leaving the reader positioned at the length field. It returns io.EOF
// if the stream ends cleanly before any command byte is read.
func (fr *FrameReader) readCommand() (string, error) {
	var cmd []byte
	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			if err == io.EOF && len(cmd) == 0 {
				return "", io.EOF
			}
			return "", errors.Wrap(err, errors.ProtocolFramingError)
		}
		if isFrameSpace(b) {
			break
		}
		cmd = append(cmd, b)
	}
	if len(cmd) == 0 {
		return "", errors.New(errors.ProtocolFramingError).WithDetail("reason", "empty command")
	}

	for {
		b, err := fr.r.ReadByte()
		if err != nil {
			return "", errors.Wrap(err, errors.ProtocolFramingError)
		}
		if !isFrameSpace(b) {
			if err := fr.r.UnreadByte(); err != nil {
				return "", errors.Wrap(err, errors.ProtocolFramingError)
			}
			break
		}
	}

	return string(cmd), nil
}

