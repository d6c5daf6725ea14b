package transfer

import (
	"bufio"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCommandFormatting(t *testing.T) {
	assert.Equal(t, "PULL /data/foo.txt\n", PullCommand("/data", "foo.txt"))
	assert.Equal(t, "PUSH /backup/foo.txt -1\n", PushOpenCommand("/backup", "foo.txt"))
	assert.Equal(t, "PUSH /backup/foo.txt 5 ", PushChunkHeader("/backup", "foo.txt", 5))
	assert.Equal(t, "PUSH /backup/foo.txt 0\n", PushCloseCommand("/backup", "foo.txt"))
	assert.Equal(t, "LIST /data\n", ListCommand("/data"))
}

func TestStripLeadingSlash(t *testing.T) {
	assert.Equal(t, "data/foo.txt", StripLeadingSlash("/data/foo.txt"))
	assert.Equal(t, "data/foo.txt", StripLeadingSlash("data/foo.txt"))
}

func TestReadPullSizeHeaderExactBoundary(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("1024 " + strings.Repeat("x", 1024)))
	size, err := ReadPullSizeHeader(r)
	require.NoError(t, err)
	assert.EqualValues(t, 1024, size)

	payload := make([]byte, size)
	n, err := r.Read(payload)
	require.NoError(t, err)
	assert.Equal(t, int(size), n)
}

func TestReadPullSizeHeaderNegative(t *testing.T) {
	r := bufio.NewReader(strings.NewReader("-1 file not found\n"))
	size, err := ReadPullSizeHeader(r)
	require.NoError(t, err)
	assert.EqualValues(t, -1, size)

	msg, err := r.ReadString('\n')
	require.NoError(t, err)
	assert.Equal(t, "file not found\n", msg)
}

func TestReadPullSizeHeaderSplitAcrossReads(t *testing.T) {
	// A reader that only ever yields one byte at a time stresses the
	// delimiter-scan loop the same way a slow network socket would.
	r := bufio.NewReader(iotest1ByteReader{strings.NewReader("7 abcdefg")})
	size, err := ReadPullSizeHeader(r)
	require.NoError(t, err)
	assert.EqualValues(t, 7, size)
}

func TestParsePushHeader(t *testing.T) {
	path, k, err := ParsePushHeader("/backup/foo.txt -1")
	require.NoError(t, err)
	assert.Equal(t, "/backup/foo.txt", path)
	assert.EqualValues(t, -1, k)

	_, _, err = ParsePushHeader("malformed")
	assert.Error(t, err)
}

type iotest1ByteReader struct {
	r *strings.Reader
}

func (o iotest1ByteReader) Read(p []byte) (int, error) {
	if len(p) == 0 {
		return 0, nil
	}
	return o.r.Read(p[:1])
}
