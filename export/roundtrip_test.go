package export

import (
	"bytes"
	"io"
	"strconv"
	"strings"
	"testing"

	"github.com/cvsfastexport/cvsfastexport/config"
	libfastimport "github.com/rcowham/go-libgitfastimport"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// dataRefMark parses a ":123"-shaped dataref into its mark number.
func dataRefMark(ref string) (int, bool) {
	if !strings.HasPrefix(ref, ":") {
		return 0, false
	}
	n, err := strconv.Atoi(ref[1:])
	if err != nil {
		return 0, false
	}
	return n, true
}

// TestEmittedStreamParsesAndRespectsMarkOrdering drives a full export
// and then reads the result back with the fast-import frontend the
// pack's own tooling uses, checking the stream-level invariant that a
// mark is never referenced before a CmdBlob or CmdCommit has defined
// it (spec §3, "A mark may be referenced only after it has been
// defined in the output stream"), and that no mark is defined twice.
func TestEmittedStreamParsesAndRespectsMarkOrdering(t *testing.T) {
	handle := buildFixture()
	cfg, err := config.Unmarshal([]byte("reportmode: fast\n"))
	require.NoError(t, err)

	var out bytes.Buffer
	ctx := NewContext(cfg, logrus.New(), &out)
	d := NewDriver(ctx, nil)
	require.NoError(t, d.Run(handle))

	defined := make(map[int]bool)
	var sawCommit, sawBlob, sawReset int

	f := libfastimport.NewFrontend(bytes.NewReader(out.Bytes()), nil, nil)
	for {
		cmd, err := f.ReadCmd()
		if err != nil {
			require.ErrorIs(t, err, io.EOF)
			break
		}
		switch c := cmd.(type) {
		case libfastimport.CmdBlob:
			assert.False(t, defined[c.Mark], "blob mark %d defined twice", c.Mark)
			defined[c.Mark] = true
			sawBlob++
		case libfastimport.CmdCommit:
			assert.False(t, defined[c.Mark], "commit mark %d defined twice", c.Mark)
			defined[c.Mark] = true
			sawCommit++
			if c.From != "" {
				m, ok := dataRefMark(c.From)
				if ok {
					assert.True(t, defined[m], "commit %d references from-mark %d before it was defined", c.Mark, m)
				}
			}
		case libfastimport.FileModify:
			m, ok := dataRefMark(string(c.DataRef))
			if ok {
				assert.True(t, defined[m], "file modify references mark %d before it was defined", m)
			}
		case libfastimport.CmdReset:
			sawReset++
		}
	}

	assert.Equal(t, ctx.Stats.BlobsEmitted, sawBlob)
	assert.Equal(t, ctx.Stats.CommitsEmitted, sawCommit)
	assert.GreaterOrEqual(t, sawReset, ctx.Stats.TagsEmitted)
}
