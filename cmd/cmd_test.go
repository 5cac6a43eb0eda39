package cmd

import (
	"bytes"
	"testing"

	"cabinet/internal/policy"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReplacePolicyOverrides(t *testing.T) {
	p, err := replacePolicy("skip", []string{"bms=check", ".ogg=rename"})
	require.NoError(t, err)

	assert.Equal(t, policy.ActionSkip, p.Default)
	assert.Equal(t, policy.ActionCheckReplace, p.Lookup("a/chart.bms"))
	assert.Equal(t, policy.ActionRename, p.Lookup("a/song.ogg"))
	assert.Equal(t, policy.ActionSkip, p.Lookup("a/cover.png"))

	_, err = replacePolicy("skip", []string{"bms"})
	assert.Error(t, err)
	_, err = replacePolicy("skip", []string{"bms=explode"})
	assert.Error(t, err)
	_, err = replacePolicy("nope", nil)
	assert.Error(t, err)
}

func TestRenderTable(t *testing.T) {
	var buf bytes.Buffer
	out := renderTable(&buf, []string{"NAME", "COUNT"}, [][]string{{"moved", "3"}, {"short"}}, []columnAlignment{alignLeft, alignRight})

	assert.Contains(t, out, "NAME")
	assert.Contains(t, out, "moved")
	assert.Empty(t, renderTable(&buf, nil, nil, nil))
}

func TestColoredPlainOffTerminal(t *testing.T) {
	var buf bytes.Buffer
	assert.Equal(t, "x", colored(&buf, 0, "x"))
}
