//go:build !windows

package gateway

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aristath/personaliz/internal/config"
	"github.com/aristath/personaliz/internal/platform"
	"github.com/aristath/personaliz/internal/process"
)

const fakeEngine = `#!/bin/sh
case "$1" in
fail)
	echo "engine exploded" >&2
	echo "$2" >&2
	exit 3
	;;
json)
	printf '{"status":"success","message":"ran","logs":["fetched","posted"]}\n'
	;;
*)
	for a in "$@"; do printf '[%s]' "$a"; done
	echo
	;;
esac
`

// execGateway runs a real shell-script engine through sh.
func execGateway(t *testing.T) (*Gateway, *process.Manager) {
	t.Helper()
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.sh"), []byte(fakeEngine), 0o755))

	cfg := config.DefaultConfig()
	cfg.Scripts.Dir = dir
	cfg.Scripts.Engine = "engine.sh"
	cfg.Scripts.Interpreter = "sh"

	pm := process.NewManager()
	runner := process.NewRunner(pm)
	g, err := New(cfg,
		WithRunner(runner),
		WithPlatform(platform.Host(runner)),
		WithLogger(discardLogger()),
	)
	require.NoError(t, err)
	return g, pm
}

func TestExec_ExecuteAgentPassesArgvUnsplit(t *testing.T) {
	g, pm := execGateway(t)

	out, err := g.ExecuteAgent(context.Background(), AgentInvocation{
		ID:    "a1",
		Name:  "Morning Digest",
		Role:  "writer; rm -rf /",
		Goal:  "it's $HOME",
		Tools: []string{"rss", "mail"},
	})
	require.NoError(t, err)
	assert.Equal(t, "[a1][Morning Digest][writer; rm -rf /][it's $HOME][rss,mail][prod]", out)
	assert.Equal(t, 0, pm.Count())
}

func TestExec_RunScriptedAgent(t *testing.T) {
	g, _ := execGateway(t)

	out, err := g.RunScriptedAgent(context.Background(), "json", "Digest", true)
	require.NoError(t, err)
	assert.False(t, out.Fallback)
	assert.JSONEq(t, `{"status":"success","message":"ran","logs":["fetched","posted"]}`, string(out.Value))

	out, err = g.RunScriptedAgent(context.Background(), "plain", "Digest", true)
	require.NoError(t, err)
	assert.True(t, out.Fallback)
	assert.JSONEq(t, `{"status":"success","message":"[plain][sandbox]","logs":[]}`, string(out.Value))
}

func TestExec_ProcessErrorStripsModeMarker(t *testing.T) {
	g, _ := execGateway(t)

	_, err := g.RunScriptedAgent(context.Background(), "fail", "Digest", false)
	require.Error(t, err)
	assert.True(t, IsKind(err, KindProcessError))
	assert.Equal(t, "engine exploded", Message(err))
}

func TestExec_MissingInterpreterIsSpawnError(t *testing.T) {
	g, _ := execGateway(t)
	g.cfg.Scripts.Interpreter = filepath.Join(t.TempDir(), "no-such-python")

	_, err := g.ExecuteAgent(context.Background(), AgentInvocation{ID: "a1"})
	assert.True(t, IsKind(err, KindSpawnError), "got %v", err)
}

func TestExec_RunCommand(t *testing.T) {
	g, _ := execGateway(t)

	out, err := g.RunCommand(context.Background(), "printf 'a b\\n'; echo done")
	require.NoError(t, err)
	assert.Equal(t, "a b\ndone\n", out)

	_, err = g.RunCommand(context.Background(), "echo nope >&2; exit 4")
	assert.True(t, IsKind(err, KindProcessError))
	assert.Equal(t, "nope\n", Message(err))
}

func TestExec_CheckInterpreterAvailable(t *testing.T) {
	g, _ := execGateway(t)
	g.cfg.Scripts.Interpreter = "true"
	assert.True(t, g.CheckInterpreterAvailable(context.Background()))

	g.cfg.Scripts.Interpreter = "false"
	assert.False(t, g.CheckInterpreterAvailable(context.Background()))
}
