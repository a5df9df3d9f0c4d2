package wire

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"strings"

	"golang.org/x/text/unicode/norm"
)

// MaxLineLen bounds each of the two lines of a record, terminator excluded.
// Longer lines are rejected by Marshal and dropped by the Decoder.
const MaxLineLen = 1 << 20

// Marshal returns the record bytes of a message.
//
// Returns a ProtocolError if the type name is invalid or the fields span
// more than one line.
func Marshal(m Message) ([]byte, error) {
	name := norm.NFC.String(m.Name())
	if err := validateName(name); err != nil {
		return nil, err
	}

	fields, err := m.MarshalFields()
	if err != nil {
		return nil, &ProtocolError{Code: ErrCodeMalformed, Name: name, Detail: "marshal fields", Err: err}
	}
	if strings.ContainsAny(fields, "\r\n") {
		return nil, &ProtocolError{Code: ErrCodeMalformed, Name: name, Detail: "fields contain a line break"}
	}
	if len(name) > MaxLineLen || len(fields)+21 > MaxLineLen {
		return nil, &ProtocolError{Code: ErrCodeMalformed, Name: name, Detail: fmt.Sprintf("record line exceeds %d bytes", MaxLineLen)}
	}

	var buf bytes.Buffer
	buf.Grow(len(name) + len(fields) + 24)
	buf.WriteString(name)
	buf.WriteByte('\n')
	buf.WriteString(strconv.FormatUint(m.Date(), 10))
	buf.WriteByte(' ')
	buf.WriteString(fields)
	buf.WriteByte('\n')
	return buf.Bytes(), nil
}

// Encoder writes records to a stream.
// An Encoder is not safe for concurrent use.
type Encoder struct {
	w *bufio.Writer
}

// NewEncoder returns an encoder writing to w.
func NewEncoder(w io.Writer) *Encoder {
	return &Encoder{w: bufio.NewWriter(w)}
}

// Encode writes one record and flushes it.
func (e *Encoder) Encode(m Message) error {
	record, err := Marshal(m)
	if err != nil {
		return err
	}
	if _, err := e.w.Write(record); err != nil {
		return err
	}
	return e.w.Flush()
}

// Decoder reads records from a stream.
// A Decoder is not safe for concurrent use.
type Decoder struct {
	r        *bufio.Reader
	registry *Registry
	logger   *slog.Logger
}

// NewDecoder returns a decoder reading from r and allocating messages from
// registry. A nil logger falls back to slog.Default().
func NewDecoder(r io.Reader, registry *Registry, logger *slog.Logger) *Decoder {
	if logger == nil {
		logger = slog.Default()
	}
	return &Decoder{r: bufio.NewReader(r), registry: registry, logger: logger}
}

// Decode returns the next well-formed message.
//
// Records failing with a ProtocolError (unknown type, malformed fields) are
// logged and skipped. Only stream errors are returned: io.EOF on a clean end
// of stream between records, io.ErrUnexpectedEOF when the stream ends inside
// a record, or the reader's own error.
func (d *Decoder) Decode() (Message, error) {
	for {
		m, err := d.decodeRecord()
		if err == nil {
			return m, nil
		}
		if IsProtocolError(err) {
			d.logger.Warn("dropping record", "error", err)
			continue
		}
		return nil, err
	}
}

// decodeRecord reads exactly one record. The record is always consumed from
// the stream, even when it fails to parse.
func (d *Decoder) decodeRecord() (Message, error) {
	name, err := d.readLine()
	if err != nil {
		if IsProtocolError(err) {
			// Skip the payload too so the stream stays aligned on records.
			if _, perr := d.readLine(); perr != nil && !IsProtocolError(perr) {
				return nil, perr
			}
		}
		return nil, err
	}

	payload, err := d.readLine()
	if err != nil {
		if errors.Is(err, io.EOF) {
			return nil, io.ErrUnexpectedEOF
		}
		return nil, err
	}

	m, err := d.registry.New(name)
	if err != nil {
		return nil, err
	}

	dateText, fields, _ := strings.Cut(payload, " ")
	date, err := strconv.ParseUint(dateText, 10, 64)
	if err != nil {
		return nil, &ProtocolError{Code: ErrCodeMalformed, Name: name, Detail: "date", Err: err}
	}

	if err := m.UnmarshalFields(fields); err != nil {
		return nil, &ProtocolError{Code: ErrCodeMalformed, Name: name, Err: err}
	}
	m.SetDate(date)

	return m, nil
}

// readLine returns the next line without its terminator.
// A partial line at the end of the stream is reported as io.ErrUnexpectedEOF.
// A line longer than MaxLineLen is consumed and reported as a ProtocolError.
func (d *Decoder) readLine() (string, error) {
	var line []byte
	tooLong := false
	for {
		frag, err := d.r.ReadSlice('\n')
		if !tooLong {
			if len(line)+len(frag) > MaxLineLen+1 {
				tooLong = true
				line = nil
			} else {
				line = append(line, frag...)
			}
		}
		if err == nil {
			break
		}
		if errors.Is(err, bufio.ErrBufferFull) {
			continue
		}
		if errors.Is(err, io.EOF) && (len(line) > 0 || tooLong) {
			return "", io.ErrUnexpectedEOF
		}
		return "", err
	}

	if tooLong {
		return "", &ProtocolError{Code: ErrCodeMalformed, Detail: fmt.Sprintf("record line exceeds %d bytes", MaxLineLen)}
	}
	return strings.TrimSuffix(string(line), "\n"), nil
}

// validateName checks that a type name can be written as a record header.
func validateName(name string) error {
	if name == "" {
		return &ProtocolError{Code: ErrCodeMalformed, Detail: "empty type name"}
	}
	if strings.ContainsAny(name, " \t\r\n") {
		return &ProtocolError{Code: ErrCodeMalformed, Name: name, Detail: fmt.Sprintf("type name %q contains whitespace", name)}
	}
	return nil
}
