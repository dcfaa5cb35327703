// Package resp implements the frame codec for the minikv wire protocol.
//
// The wire format is RESP2:
//
//	+<text>\r\n              SimpleString
//	-<text>\r\n              ErrorString
//	:<int64>\r\n             Integer
//	$<len>\r\n<bytes>\r\n    BulkString
//	$-1\r\n                  Null (*-1\r\n is accepted as Null too)
//	*<n>\r\n<n frames>       Array, elements may be arrays themselves
//
// Parse is a pure function over a byte slice and reports ErrIncomplete when
// more input is needed. Conn layers a growable read buffer and a locked
// writer on top of a net.Conn.
package resp
