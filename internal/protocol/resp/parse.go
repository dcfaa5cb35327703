package resp

import (
	"bytes"
	"errors"
	"fmt"
	"strconv"
)

// Protocol limits to prevent DoS attacks.
const (
	// MaxArrayLen limits the number of elements in a single array.
	MaxArrayLen = 1024

	// MaxBulkLen limits the size of a single bulk string (512KB).
	MaxBulkLen = 512 * 1024

	// MaxLineLen limits the length of a header or simple line (4KB).
	MaxLineLen = 4 * 1024

	// MaxDepth limits array nesting.
	MaxDepth = 32
)

var (
	// ErrIncomplete means the buffer holds a prefix of a frame.
	ErrIncomplete = errors.New("resp: incomplete frame")

	ErrProtocol      = errors.New("resp: protocol error")
	ErrLimitExceeded = errors.New("resp: limit exceeded")
)

var crlf = []byte("\r\n")

// Parse decodes one frame from the start of buf and returns it together
// with the number of bytes it occupied.
//
// If buf holds only part of a frame, Parse returns ErrIncomplete and the
// caller should retry with more data. Malformed input yields an error
// wrapping ErrProtocol or ErrLimitExceeded. The returned frame never
// aliases buf.
func Parse(buf []byte) (Frame, int, error) {
	return parse(buf, 0)
}

func parse(buf []byte, depth int) (Frame, int, error) {
	if depth > MaxDepth {
		return nil, 0, fmt.Errorf("%w: nesting depth exceeds limit %d", ErrLimitExceeded, MaxDepth)
	}
	if len(buf) == 0 {
		return nil, 0, ErrIncomplete
	}

	typ := buf[0]
	switch typ {
	case '+', '-', ':', '$', '*':
	default:
		return nil, 0, fmt.Errorf("%w: invalid frame type byte %q", ErrProtocol, typ)
	}

	line, n, err := readLine(buf)
	if err != nil {
		return nil, 0, err
	}
	body := line[1:]

	switch typ {
	case '+':
		return SimpleString(body), n, nil
	case '-':
		return ErrorString(body), n, nil
	case ':':
		v, err := parseInt(body)
		if err != nil {
			return nil, 0, fmt.Errorf("%w: invalid integer %q", ErrProtocol, body)
		}
		return Integer(v), n, nil
	case '$':
		return parseBulk(buf, body, n)
	default:
		return parseArray(buf, body, n, depth)
	}
}

func parseBulk(buf, header []byte, n int) (Frame, int, error) {
	size, err := parseInt(header)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	}
	if size == -1 {
		return Null{}, n, nil
	}
	if size < 0 {
		return nil, 0, fmt.Errorf("%w: invalid bulk length", ErrProtocol)
	}
	if size > MaxBulkLen {
		return nil, 0, fmt.Errorf("%w: bulk length %d exceeds limit %d", ErrLimitExceeded, size, MaxBulkLen)
	}

	end := n + int(size) + 2
	if len(buf) < end {
		return nil, 0, ErrIncomplete
	}
	if !bytes.Equal(buf[end-2:end], crlf) {
		return nil, 0, fmt.Errorf("%w: invalid bulk terminator", ErrProtocol)
	}

	data := make([]byte, size)
	copy(data, buf[n:end-2])
	return BulkString(data), end, nil
}

func parseArray(buf, header []byte, n, depth int) (Frame, int, error) {
	count, err := parseInt(header)
	if err != nil {
		return nil, 0, fmt.Errorf("%w: invalid array length", ErrProtocol)
	}
	if count == -1 {
		return Null{}, n, nil
	}
	if count < 0 {
		return nil, 0, fmt.Errorf("%w: invalid array length", ErrProtocol)
	}
	if count > MaxArrayLen {
		return nil, 0, fmt.Errorf("%w: array length %d exceeds limit %d", ErrLimitExceeded, count, MaxArrayLen)
	}

	arr := make(Array, 0, count)
	off := n
	for i := int64(0); i < count; i++ {
		f, m, err := parse(buf[off:], depth+1)
		if err != nil {
			return nil, 0, err
		}
		arr = append(arr, f)
		off += m
	}
	return arr, off, nil
}

// readLine returns the first CRLF-terminated line of buf without the
// terminator, and the number of bytes consumed including it.
func readLine(buf []byte) ([]byte, int, error) {
	idx := bytes.Index(buf, crlf)
	if idx < 0 {
		if len(buf) > MaxLineLen {
			return nil, 0, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, MaxLineLen)
		}
		return nil, 0, ErrIncomplete
	}
	if idx > MaxLineLen {
		return nil, 0, fmt.Errorf("%w: line length exceeds limit %d", ErrLimitExceeded, MaxLineLen)
	}
	return buf[:idx], idx + 2, nil
}

func parseInt(b []byte) (int64, error) {
	if len(b) == 0 {
		return 0, strconv.ErrSyntax
	}
	return strconv.ParseInt(string(b), 10, 64)
}
