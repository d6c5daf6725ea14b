// Package transfer implements the LIST/PULL/PUSH wire protocol shared
// between the manager's transfer executor and the file-server's
// command loop, and the executor itself.
package transfer

import (
	"bufio"
	"fmt"
	"strconv"
	"strings"
)

// BufferSize is the chunk size used when forwarding a PULL payload to
// a PUSH target: 32 KiB.
const BufferSize = 32 * 1024

// ListSentinel terminates a LIST reply.
const ListSentinel = "."

// PullCommand formats a PULL request line for dir/filename.
func PullCommand(dir, filename string) string {
	return fmt.Sprintf("PULL %s\n", joinPath(dir, filename))
}

// PushOpenCommand formats the "open for write, truncate" PUSH frame.
func PushOpenCommand(dir, filename string) string {
	return fmt.Sprintf("PUSH %s -1\n", joinPath(dir, filename))
}

// PushChunkHeader formats a PUSH chunk header. It deliberately ends in
// a single space, not a newline: the receiver switches to a raw,
// length-counted binary read of exactly k bytes immediately after the
// space, so no in-band delimiter can appear inside the payload.
func PushChunkHeader(dir, filename string, k int) string {
	return fmt.Sprintf("PUSH %s %d ", joinPath(dir, filename), k)
}

// PushCloseCommand formats the "close" PUSH frame.
func PushCloseCommand(dir, filename string) string {
	return fmt.Sprintf("PUSH %s 0\n", joinPath(dir, filename))
}

// ListCommand formats a LIST request line for dir.
func ListCommand(dir string) string {
	return fmt.Sprintf("LIST %s\n", dir)
}

func joinPath(dir, filename string) string {
	dir = strings.TrimSuffix(dir, "/")
	return dir + "/" + filename
}

// StripLeadingSlash implements the file-server's whole access-control
// model: a path argument received over the wire with a leading slash
// has it stripped so it resolves relative to the server's working
// directory.
func StripLeadingSlash(p string) string {
	return strings.TrimPrefix(p, "/")
}

// ReadPullSizeHeader reads and parses the leading "<size> " token from
// a PULL reply. Per the protocol, the parse rule is: scan bytes until
// the first SPACE, interpret the preceding bytes as a signed decimal
// integer; the byte immediately after the SPACE is the first byte of
// the payload. Using a *bufio.Reader means this works correctly even
// when the size token and the start of the payload arrive in the same
// underlying read, or the token itself is split across reads: ReadBytes
// blocks on the underlying connection until it has seen the delimiter,
// and anything it over-reads past the delimiter stays buffered for the
// subsequent payload reads.
func ReadPullSizeHeader(r *bufio.Reader) (int64, error) {
	raw, err := r.ReadBytes(' ')
	if err != nil {
		return 0, fmt.Errorf("read size header: %w", err)
	}
	tok := strings.TrimSuffix(string(raw), " ")
	size, err := strconv.ParseInt(tok, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("parse size header %q: %w", tok, err)
	}
	return size, nil
}

// ParsePushHeader parses a "<path> <k>" command line already stripped
// of the leading "PUSH " token, returning path and k. The file-server
// side does not call this directly — it needs to know which byte
// terminated the count field (space means a chunk payload follows in
// binary, newline means an open/close frame with nothing after it),
// which a line already split into fields has lost — but it is a
// convenient helper for tests and any caller that already holds a
// complete, newline-terminated header line.
func ParsePushHeader(line string) (path string, k int64, err error) {
	fields := strings.Fields(line)
	if len(fields) != 2 {
		return "", 0, fmt.Errorf("malformed PUSH header %q", line)
	}
	k, err = strconv.ParseInt(fields[1], 10, 64)
	if err != nil {
		return "", 0, fmt.Errorf("malformed PUSH length %q: %w", line, err)
	}
	return fields[0], k, nil
}
