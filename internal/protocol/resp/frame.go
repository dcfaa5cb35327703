package resp

import "strconv"

// Kind identifies a Frame variant.
type Kind uint8

const (
	KindSimple Kind = iota + 1
	KindError
	KindInteger
	KindBulk
	KindNull
	KindArray
)

func (k Kind) String() string {
	switch k {
	case KindSimple:
		return "simple"
	case KindError:
		return "error"
	case KindInteger:
		return "integer"
	case KindBulk:
		return "bulk"
	case KindNull:
		return "null"
	case KindArray:
		return "array"
	default:
		return "kind(" + strconv.Itoa(int(k)) + ")"
	}
}

// Frame is a single self-delimited protocol message.
//
// The concrete types are SimpleString, ErrorString, Integer, BulkString,
// Null and Array. Frames are values; once built they are not modified.
type Frame interface {
	Kind() Kind
	appendTo(dst []byte) []byte
}

// SimpleString is a status reply such as "OK".
type SimpleString string

// ErrorString is an error reply. By convention it starts with an error
// code such as "ERR".
type ErrorString string

// Integer is a signed 64-bit integer reply.
type Integer int64

// BulkString is a binary-safe byte string.
type BulkString []byte

// Null is the absent value.
type Null struct{}

// Array is an ordered sequence of frames.
type Array []Frame

func (SimpleString) Kind() Kind { return KindSimple }
func (ErrorString) Kind() Kind  { return KindError }
func (Integer) Kind() Kind      { return KindInteger }
func (BulkString) Kind() Kind   { return KindBulk }
func (Null) Kind() Kind         { return KindNull }
func (Array) Kind() Kind        { return KindArray }

func (s SimpleString) appendTo(dst []byte) []byte {
	dst = append(dst, '+')
	dst = append(dst, s...)
	return append(dst, '\r', '\n')
}

func (e ErrorString) appendTo(dst []byte) []byte {
	dst = append(dst, '-')
	dst = append(dst, e...)
	return append(dst, '\r', '\n')
}

func (i Integer) appendTo(dst []byte) []byte {
	dst = append(dst, ':')
	dst = strconv.AppendInt(dst, int64(i), 10)
	return append(dst, '\r', '\n')
}

func (b BulkString) appendTo(dst []byte) []byte {
	dst = append(dst, '$')
	dst = strconv.AppendInt(dst, int64(len(b)), 10)
	dst = append(dst, '\r', '\n')
	dst = append(dst, b...)
	return append(dst, '\r', '\n')
}

func (Null) appendTo(dst []byte) []byte {
	return append(dst, "$-1\r\n"...)
}

func (a Array) appendTo(dst []byte) []byte {
	dst = append(dst, '*')
	dst = strconv.AppendInt(dst, int64(len(a)), 10)
	dst = append(dst, '\r', '\n')
	for _, f := range a {
		dst = f.appendTo(dst)
	}
	return dst
}

// Append appends the wire form of f to dst.
func Append(dst []byte, f Frame) []byte {
	return f.appendTo(dst)
}

// Encode returns the wire form of f.
func Encode(f Frame) []byte {
	return f.appendTo(nil)
}

// Text returns the textual content of a SimpleString or BulkString frame.
func Text(f Frame) (string, bool) {
	switch v := f.(type) {
	case SimpleString:
		return string(v), true
	case BulkString:
		return string(v), true
	default:
		return "", false
	}
}

// Bulk is a convenience constructor for a BulkString from text.
func Bulk(s string) BulkString {
	return BulkString(s)
}
