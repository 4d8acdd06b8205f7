package client

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTitleExtractsWorkingDirAndDescription(t *testing.T) {
	tc := &ToolCall{Title: "ls -la [current working directory /home/user/project] (list files in the project (recursively))"}
	parseTitle(tc)

	assert.Equal(t, "/home/user/project", tc.WorkingDir)
	assert.Equal(t, "list files in the project (recursively)", tc.Description)
	assert.Equal(t, "ls -la", tc.Input)
}

func TestParseTitleWithoutWorkingDir(t *testing.T) {
	tc := &ToolCall{Title: "grep foo (search for foo)"}
	parseTitle(tc)

	assert.Equal(t, "", tc.WorkingDir)
	assert.Equal(t, "search for foo", tc.Description)
	assert.Equal(t, "grep foo", tc.Input)
}

func TestParseTitleWithArgsJSON(t *testing.T) {
	tc := &ToolCall{Title: `write_file input(s): {"path":"a.txt","content":"hi"}`}
	parseTitle(tc)

	m, ok := tc.Args.(map[string]interface{})
	require.True(t, ok)
	assert.Equal(t, "a.txt", m["path"])
	assert.Equal(t, "write_file", tc.Input)
}

func TestParseTitleWithUnparsableArgsKeepsRawString(t *testing.T) {
	tc := &ToolCall{Title: `run_cmd input(s): not-json`}
	parseTitle(tc)

	assert.Equal(t, "not-json", tc.Args)
}

func TestParseTitleNoTrailingParensLeavesDescriptionEmpty(t *testing.T) {
	tc := &ToolCall{Title: "plain title with no parens"}
	parseTitle(tc)

	assert.Equal(t, "", tc.Description)
	assert.Equal(t, "plain title with no parens", tc.Input)
}
