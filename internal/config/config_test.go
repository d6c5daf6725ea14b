package config

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseSkipsCommentsAndBlankLines(t *testing.T) {
	input := `
# sync pairs for the east-coast rollout
/data@10.0.0.1:9000 /backup@10.0.0.2:9001

/archive@10.0.0.3:9000 /backup2@10.0.0.4:9001
`
	pairs, err := Parse(strings.NewReader(input))
	require.NoError(t, err)
	require.Len(t, pairs, 2)

	assert.Equal(t, "/data", pairs[0].Source.Dir)
	assert.Equal(t, "10.0.0.1", pairs[0].Source.Host)
	assert.Equal(t, 9000, pairs[0].Source.Port)
	assert.Equal(t, "/backup", pairs[0].Target.Dir)
	assert.Equal(t, 9001, pairs[0].Target.Port)

	assert.Equal(t, "/archive", pairs[1].Source.Dir)
	assert.Equal(t, "/backup2", pairs[1].Target.Dir)
}

func TestParseRejectsWrongFieldCount(t *testing.T) {
	_, err := Parse(strings.NewReader("/data@host:9000\n"))
	assert.Error(t, err)
}

func TestParseRejectsMalformedSpec(t *testing.T) {
	_, err := Parse(strings.NewReader("/data@host:notaport /backup@host2:9001\n"))
	assert.Error(t, err)
}

func TestParseEmptyInputYieldsNoPairs(t *testing.T) {
	pairs, err := Parse(strings.NewReader(""))
	require.NoError(t, err)
	assert.Empty(t, pairs)
}
