package output

import (
	"bytes"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPrintTable(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, memberList{{Name: "alice"}, {Name: "carol"}}))

	out := buf.String()
	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "GROUPS")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "carol")
}

func TestSimpleTable(t *testing.T) {
	pairs := [][2]string{
		{"Username", "alice"},
		{"Groups", "admins, users"},
	}

	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, pairs))

	out := buf.String()
	assert.Contains(t, out, "Username")
	assert.Contains(t, out, "alice")
	assert.Contains(t, out, "admins, users")
}

type summarizedList struct{ memberList }

func (l summarizedList) Summary() string { return Count(len(l.memberList), "member") }

func TestPrintTableSummary(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, PrintTable(&buf, summarizedList{memberList{{Name: "alice"}}}))
	assert.Contains(t, buf.String(), "\n1 member\n")

	buf.Reset()
	require.NoError(t, PrintTable(&buf, memberList{{Name: "alice"}}))
	assert.NotContains(t, buf.String(), "member")
}

func TestSimpleTableEmptyValue(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, SimpleTable(&buf, [][2]string{{"Mail", ""}}))
	assert.Contains(t, buf.String(), None)
}

func TestCellHelpers(t *testing.T) {
	assert.Equal(t, None, Value(""))
	assert.Equal(t, "alice", Value("alice"))
	assert.Equal(t, "yes", YesNo(true))
	assert.Equal(t, "no", YesNo(false))

	assert.Equal(t, None, List(nil, 3))
	assert.Equal(t, "a, b", List([]string{"a", "b"}, 0))
	assert.Equal(t, "a, b", List([]string{"a", "b"}, 2))
	assert.Equal(t, "a, b (+2 more)", List([]string{"a", "b", "c", "d"}, 2))

	assert.Equal(t, "0 users", Count(0, "user"))
	assert.Equal(t, "1 user", Count(1, "user"))
	assert.Equal(t, "3 groups", Count(3, "group"))
}
