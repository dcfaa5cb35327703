package resp

import (
	"bytes"
	"errors"
	"reflect"
	"strings"
	"testing"
)

// ============================================================
// Encode / Parse round trip
// ============================================================

func TestRoundTrip(t *testing.T) {
	tests := []struct {
		name  string
		frame Frame
		wire  string
	}{
		{"simple", SimpleString("OK"), "+OK\r\n"},
		{"empty simple", SimpleString(""), "+\r\n"},
		{"error", ErrorString("ERR unimplemented"), "-ERR unimplemented\r\n"},
		{"integer", Integer(42), ":42\r\n"},
		{"negative integer", Integer(-7), ":-7\r\n"},
		{"bulk", BulkString("bar"), "$3\r\nbar\r\n"},
		{"empty bulk", BulkString([]byte{}), "$0\r\n\r\n"},
		{"binary bulk", BulkString("a\r\nb\x00"), "$5\r\na\r\nb\x00\r\n"},
		{"null", Null{}, "$-1\r\n"},
		{"empty array", Array{}, "*0\r\n"},
		{
			"command array",
			Array{Bulk("SET"), Bulk("foo"), Bulk("bar")},
			"*3\r\n$3\r\nSET\r\n$3\r\nfoo\r\n$3\r\nbar\r\n",
		},
		{
			"mixed array",
			Array{SimpleString("a"), Integer(1), Null{}, ErrorString("e")},
			"*4\r\n+a\r\n:1\r\n$-1\r\n-e\r\n",
		},
		{
			"nested depth 3",
			Array{
				Integer(1),
				Array{
					Bulk("x"),
					Array{SimpleString("deep"), Null{}},
				},
				Array{},
			},
			"*3\r\n:1\r\n*2\r\n$1\r\nx\r\n*2\r\n+deep\r\n$-1\r\n*0\r\n",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			wire := Encode(tt.frame)
			if string(wire) != tt.wire {
				t.Fatalf("Encode() = %q, want %q", wire, tt.wire)
			}

			got, n, err := Parse(wire)
			if err != nil {
				t.Fatalf("Parse() error = %v", err)
			}
			if n != len(wire) {
				t.Errorf("Parse() consumed %d bytes, want %d", n, len(wire))
			}
			if !reflect.DeepEqual(got, tt.frame) {
				t.Errorf("Parse() = %#v, want %#v", got, tt.frame)
			}
		})
	}
}

func TestParse_NullArray(t *testing.T) {
	got, n, err := Parse([]byte("*-1\r\n"))
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if n != 5 {
		t.Errorf("consumed = %d, want 5", n)
	}
	if _, ok := got.(Null); !ok {
		t.Errorf("Parse() = %#v, want Null", got)
	}
}

func TestParse_OneFrameAtATime(t *testing.T) {
	buf := []byte("+OK\r\n:5\r\n")

	f, n, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f != SimpleString("OK") || n != 5 {
		t.Fatalf("Parse() = (%#v, %d), want (OK, 5)", f, n)
	}

	f, n, err = Parse(buf[n:])
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if f != Integer(5) || n != 4 {
		t.Errorf("Parse() = (%#v, %d), want (5, 4)", f, n)
	}
}

func TestParse_DoesNotAliasInput(t *testing.T) {
	buf := []byte("$3\r\nbar\r\n")
	f, _, err := Parse(buf)
	if err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	copy(buf, "XXXXXXXXX")
	if got := string(f.(BulkString)); got != "bar" {
		t.Errorf("bulk changed with input buffer: %q", got)
	}
}

// ============================================================
// Incomplete input
// ============================================================

func TestParse_EveryPrefixIsIncomplete(t *testing.T) {
	frame := Array{
		Bulk("PUBLISH"),
		Array{Integer(10), Bulk("hello world")},
		SimpleString("tail"),
	}
	wire := Encode(frame)

	for i := 0; i < len(wire); i++ {
		_, _, err := Parse(wire[:i])
		if !errors.Is(err, ErrIncomplete) {
			t.Fatalf("Parse(prefix %d of %d) error = %v, want ErrIncomplete", i, len(wire), err)
		}
	}
}

// ============================================================
// Malformed input
// ============================================================

func TestParse_Errors(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		wantErr error
	}{
		{"unknown type byte", "?foo\r\n", ErrProtocol},
		{"lowercase garbage", "hello\r\n", ErrProtocol},
		{"bad integer", ":abc\r\n", ErrProtocol},
		{"empty integer", ":\r\n", ErrProtocol},
		{"bad bulk length", "$x\r\n", ErrProtocol},
		{"negative bulk length", "$-2\r\n", ErrProtocol},
		{"bad bulk terminator", "$3\r\nbarXY", ErrProtocol},
		{"bad array length", "*x\r\n", ErrProtocol},
		{"negative array length", "*-5\r\n", ErrProtocol},
		{"bad element type", "*1\r\n!x\r\n", ErrProtocol},
		{"array too long", "*100000\r\n", ErrLimitExceeded},
		{"bulk too long", "$999999999\r\n", ErrLimitExceeded},
		{"line too long", "+" + strings.Repeat("a", MaxLineLen+10), ErrLimitExceeded},
		{"too deep", strings.Repeat("*1\r\n", MaxDepth+2) + ":1\r\n", ErrLimitExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, _, err := Parse([]byte(tt.input))
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Parse(%q) error = %v, want %v", tt.input, err, tt.wantErr)
			}
		})
	}
}

// ============================================================
// Helpers
// ============================================================

func TestText(t *testing.T) {
	tests := []struct {
		frame Frame
		want  string
		ok    bool
	}{
		{SimpleString("get"), "get", true},
		{Bulk("set"), "set", true},
		{Integer(1), "", false},
		{Null{}, "", false},
		{Array{Bulk("x")}, "", false},
	}

	for _, tt := range tests {
		got, ok := Text(tt.frame)
		if got != tt.want || ok != tt.ok {
			t.Errorf("Text(%#v) = (%q, %v), want (%q, %v)", tt.frame, got, ok, tt.want, tt.ok)
		}
	}
}

func TestKind_String(t *testing.T) {
	kinds := map[Kind]string{
		KindSimple:  "simple",
		KindError:   "error",
		KindInteger: "integer",
		KindBulk:    "bulk",
		KindNull:    "null",
		KindArray:   "array",
		Kind(99):    "kind(99)",
	}
	for k, want := range kinds {
		if got := k.String(); got != want {
			t.Errorf("Kind(%d).String() = %q, want %q", k, got, want)
		}
	}
}

func TestAppend_ReusesBuffer(t *testing.T) {
	buf := make([]byte, 0, 64)
	buf = Append(buf, SimpleString("OK"))
	buf = Append(buf, Integer(1))
	if !bytes.Equal(buf, []byte("+OK\r\n:1\r\n")) {
		t.Errorf("Append() = %q", buf)
	}
}
