package main

import (
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kc2g-flex-tools/nBEAT/internal/audio"
)

func TestViewShowsSpectrumPeak(t *testing.T) {
	p, ctl := newPanel(t, "custom")
	require.NoError(t, p.Start())
	_, err := ctl.Render(make([]float32, audio.AnalyserSize*2*audio.Channels))
	require.NoError(t, err)

	view := NewUI(p, ctl, &LogPane{}, func(tea.Msg) {}).View()
	assert.Contains(t, view, "peak")
}

func TestLogPaneKeepsLastLines(t *testing.T) {
	var l LogPane
	for i := 0; i < logLines+3; i++ {
		_, _ = l.Write([]byte("line\n"))
	}
	_, _ = l.Write([]byte("last\n"))
	lines := strings.Split(l.String(), "\n")
	assert.Len(t, lines, logLines)
	assert.Equal(t, "last", lines[len(lines)-1])
}
