package gadget

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// STOMP commands used by the gadget.
const (
	CmdConnect     = "CONNECT"
	CmdConnected   = "CONNECTED"
	CmdSend        = "SEND"
	CmdSubscribe   = "SUBSCRIBE"
	CmdUnsubscribe = "UNSUBSCRIBE"
	CmdDisconnect  = "DISCONNECT"
	CmdMessage     = "MESSAGE"
	CmdReceipt     = "RECEIPT"
	CmdError       = "ERROR"
)

// Header octets that must be escaped in every frame but CONNECT and CONNECTED.
var (
	headerEscaper   = strings.NewReplacer(`\`, `\\`, "\r", `\r`, "\n", `\n`, ":", `\c`)
	headerUnescaper = strings.NewReplacer(`\\`, `\`, `\r`, "\r", `\n`, "\n", `\c`, ":")
)

func escapesHeaders(command string) bool {
	return command != CmdConnect && command != CmdConnected
}

// Frame is a single STOMP frame.
type Frame struct {
	Command string
	Headers map[string]string
	Body    []byte
}

// Header returns the value of a header, or "" when absent.
func (f *Frame) Header(key string) string {
	return f.Headers[key]
}

// IsHeartbeat reports whether the frame was an empty keep-alive line.
func (f *Frame) IsHeartbeat() bool {
	return f.Command == ""
}

// Encode serializes the frame. Headers are written in sorted order and
// escaped unless the frame is part of the handshake.
func (f *Frame) Encode() []byte {
	var buf bytes.Buffer
	buf.WriteString(f.Command + "\n")

	escape := func(s string) string { return s }
	if escapesHeaders(f.Command) {
		escape = headerEscaper.Replace
	}

	keys := make([]string, 0, len(f.Headers))
	for k := range f.Headers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		buf.WriteString(escape(k) + ":" + escape(f.Headers[k]) + "\n")
	}
	if len(f.Body) > 0 {
		if _, ok := f.Headers["content-length"]; !ok {
			buf.WriteString("content-length:" + strconv.Itoa(len(f.Body)) + "\n")
		}
	}

	buf.WriteString("\n")
	buf.Write(f.Body)
	buf.WriteByte(0)
	return buf.Bytes()
}

// ParseFrame decodes a single STOMP frame.
func ParseFrame(data []byte) (*Frame, error) {
	// Leading EOLs are heart-beats
	data = bytes.TrimLeft(data, "\r\n")
	if len(data) == 0 {
		return &Frame{Headers: map[string]string{}}, nil
	}

	head, body, found := bytes.Cut(data, []byte("\n\n"))
	if !found {
		head, body, found = bytes.Cut(data, []byte("\r\n\r\n"))
	}
	if !found {
		return nil, fmt.Errorf("frame has no header terminator")
	}

	lines := strings.Split(strings.ReplaceAll(string(head), "\r\n", "\n"), "\n")
	frame := &Frame{
		Command: strings.TrimSpace(lines[0]),
		Headers: make(map[string]string, len(lines)-1),
	}
	unescape := escapesHeaders(frame.Command)
	for _, line := range lines[1:] {
		key, value, ok := strings.Cut(line, ":")
		if !ok {
			continue
		}
		if unescape {
			key, value = headerUnescaper.Replace(key), headerUnescaper.Replace(value)
		}
		key = strings.ToLower(strings.TrimSpace(key))
		// First occurrence of a repeated header wins
		if _, seen := frame.Headers[key]; !seen {
			frame.Headers[key] = value
		}
	}

	if cl, ok := frame.Headers["content-length"]; ok {
		n, err := strconv.Atoi(strings.TrimSpace(cl))
		if err != nil {
			return nil, fmt.Errorf("parse content-length %q: %w", cl, err)
		}
		if n > len(body) {
			return nil, fmt.Errorf("content-length %d exceeds body of %d bytes", n, len(body))
		}
		frame.Body = body[:n]
		return frame, nil
	}

	if i := bytes.IndexByte(body, 0); i >= 0 {
		body = body[:i]
	}
	frame.Body = body
	return frame, nil
}
