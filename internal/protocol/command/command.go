// Package command defines the typed operations decoded from request frames.
//
// A request is an Array frame whose first element names the command and
// whose remaining elements are its arguments. FromFrame validates arity and
// argument types and returns one of Get, Set, Publish, Subscribe,
// Unsubscribe or Unknown. Each command can also build its own request frame
// with ToFrame, which is what the client uses.
package command

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/yndnr/minikv/internal/protocol/resp"
)

// ErrSyntax is wrapped by every error FromFrame returns.
var ErrSyntax = errors.New("syntax error")

// Command is a decoded request.
type Command interface {
	// Name returns the canonical upper-case command name.
	Name() string

	// ToFrame builds the request frame for the command.
	ToFrame() resp.Frame
}

// Get reads the value of Key.
type Get struct {
	Key string
}

// Set stores Value under Key. A positive Expire makes the value absent once
// that much time has elapsed.
type Set struct {
	Key    string
	Value  []byte
	Expire time.Duration
}

// Publish sends Message to every subscriber of Channel.
type Publish struct {
	Channel string
	Message []byte
}

// Subscribe registers the connection on one or more channels.
type Subscribe struct {
	Channels []string
}

// Unsubscribe removes the connection from Channels, or from every channel
// when Channels is empty.
type Unsubscribe struct {
	Channels []string
}

// Unknown is any command name that is not recognised.
type Unknown struct {
	Command string
}

func (Get) Name() string         { return "GET" }
func (Set) Name() string         { return "SET" }
func (Publish) Name() string     { return "PUBLISH" }
func (Subscribe) Name() string   { return "SUBSCRIBE" }
func (Unsubscribe) Name() string { return "UNSUBSCRIBE" }
func (u Unknown) Name() string   { return u.Command }

func (c Get) ToFrame() resp.Frame {
	return resp.Array{resp.Bulk("GET"), resp.Bulk(c.Key)}
}

func (c Set) ToFrame() resp.Frame {
	f := resp.Array{resp.Bulk("SET"), resp.Bulk(c.Key), resp.BulkString(c.Value)}
	if c.Expire > 0 {
		ms := c.Expire.Milliseconds()
		if ms < 1 {
			ms = 1
		}
		f = append(f, resp.Bulk("PX"), resp.Bulk(strconv.FormatInt(ms, 10)))
	}
	return f
}

func (c Publish) ToFrame() resp.Frame {
	return resp.Array{resp.Bulk("PUBLISH"), resp.Bulk(c.Channel), resp.BulkString(c.Message)}
}

func (c Subscribe) ToFrame() resp.Frame {
	return namesFrame("SUBSCRIBE", c.Channels)
}

func (c Unsubscribe) ToFrame() resp.Frame {
	return namesFrame("UNSUBSCRIBE", c.Channels)
}

func (u Unknown) ToFrame() resp.Frame {
	return resp.Array{resp.Bulk(u.Command)}
}

func namesFrame(name string, channels []string) resp.Frame {
	f := make(resp.Array, 0, len(channels)+1)
	f = append(f, resp.Bulk(name))
	for _, ch := range channels {
		f = append(f, resp.Bulk(ch))
	}
	return f
}

// FromFrame decodes a request frame.
//
// Unrecognised command names are returned as Unknown, not as an error, so
// the caller can reply and keep the connection open.
func FromFrame(f resp.Frame) (Command, error) {
	arr, ok := f.(resp.Array)
	if !ok {
		return nil, fmt.Errorf("%w: expected array, got %s", ErrSyntax, f.Kind())
	}
	if len(arr) == 0 {
		return nil, fmt.Errorf("%w: empty command", ErrSyntax)
	}

	name, ok := resp.Text(arr[0])
	if !ok {
		return nil, fmt.Errorf("%w: command name must be a string, got %s", ErrSyntax, arr[0].Kind())
	}
	name = strings.ToUpper(name)
	args := arr[1:]

	switch name {
	case "GET":
		return parseGet(args)
	case "SET":
		return parseSet(args)
	case "PUBLISH":
		return parsePublish(args)
	case "SUBSCRIBE":
		if len(args) == 0 {
			return nil, wrongArity(name)
		}
		channels, err := texts(name, args)
		if err != nil {
			return nil, err
		}
		return Subscribe{Channels: channels}, nil
	case "UNSUBSCRIBE":
		channels, err := texts(name, args)
		if err != nil {
			return nil, err
		}
		return Unsubscribe{Channels: channels}, nil
	default:
		return Unknown{Command: name}, nil
	}
}

func parseGet(args []resp.Frame) (Command, error) {
	if len(args) != 1 {
		return nil, wrongArity("GET")
	}
	key, err := text("GET", args[0])
	if err != nil {
		return nil, err
	}
	return Get{Key: key}, nil
}

// parseSet accepts SET key value [EX seconds | PX milliseconds].
func parseSet(args []resp.Frame) (Command, error) {
	if len(args) != 2 && len(args) != 4 {
		return nil, wrongArity("SET")
	}
	key, err := text("SET", args[0])
	if err != nil {
		return nil, err
	}
	value, err := bytesArg("SET", args[1])
	if err != nil {
		return nil, err
	}
	cmd := Set{Key: key, Value: value}
	if len(args) == 2 {
		return cmd, nil
	}

	opt, err := text("SET", args[2])
	if err != nil {
		return nil, err
	}
	raw, err := text("SET", args[3])
	if err != nil {
		return nil, err
	}
	n, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || n <= 0 {
		return nil, fmt.Errorf("%w: invalid expire time in 'SET' command", ErrSyntax)
	}

	switch strings.ToUpper(opt) {
	case "EX":
		if n > int64(time.Duration(1<<63-1)/time.Second) {
			return nil, fmt.Errorf("%w: invalid expire time in 'SET' command", ErrSyntax)
		}
		cmd.Expire = time.Duration(n) * time.Second
	case "PX":
		if n > int64(time.Duration(1<<63-1)/time.Millisecond) {
			return nil, fmt.Errorf("%w: invalid expire time in 'SET' command", ErrSyntax)
		}
		cmd.Expire = time.Duration(n) * time.Millisecond
	default:
		return nil, fmt.Errorf("%w: unsupported option %q in 'SET' command", ErrSyntax, opt)
	}
	return cmd, nil
}

func parsePublish(args []resp.Frame) (Command, error) {
	if len(args) != 2 {
		return nil, wrongArity("PUBLISH")
	}
	channel, err := text("PUBLISH", args[0])
	if err != nil {
		return nil, err
	}
	msg, err := bytesArg("PUBLISH", args[1])
	if err != nil {
		return nil, err
	}
	return Publish{Channel: channel, Message: msg}, nil
}

func wrongArity(name string) error {
	return fmt.Errorf("%w: wrong number of arguments for '%s' command", ErrSyntax, name)
}

func text(name string, f resp.Frame) (string, error) {
	s, ok := resp.Text(f)
	if !ok {
		return "", fmt.Errorf("%w: '%s' argument must be a string, got %s", ErrSyntax, name, f.Kind())
	}
	return s, nil
}

func texts(name string, fs []resp.Frame) ([]string, error) {
	out := make([]string, 0, len(fs))
	for _, f := range fs {
		s, err := text(name, f)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

func bytesArg(name string, f resp.Frame) ([]byte, error) {
	switch v := f.(type) {
	case resp.BulkString:
		return []byte(v), nil
	case resp.SimpleString:
		return []byte(v), nil
	default:
		return nil, fmt.Errorf("%w: '%s' argument must be a string, got %s", ErrSyntax, name, f.Kind())
	}
}
