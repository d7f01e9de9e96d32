package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gocircum/nordconnect/testutils"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sys/unix"
)

// fakeOpenVPN writes a script standing in for openvpn. The script records its
// own pid in <dir>/script.pid before running body.
func fakeOpenVPN(t *testing.T, body string) (Settings, string) {
	t.Helper()
	s := testSettings(t)
	binDir := t.TempDir()
	pidFile := filepath.Join(binDir, "script.pid")
	s.Binary = testutils.WriteScript(t, binDir, "openvpn", "echo $$ > "+pidFile+"\n"+body)
	s.StartupTimeout = 2 * time.Second
	writeOvpn(t, s.ConfigDir, "us1.nordvpn.com", "udp", sampleOvpn)
	return s, pidFile
}

func scriptPid(t *testing.T, path string) int {
	t.Helper()
	var pid int
	testutils.Eventually(t, func() bool {
		data, err := os.ReadFile(path)
		if err != nil {
			return false
		}
		pid, err = strconv.Atoi(strings.TrimSpace(string(data)))
		return err == nil
	})
	return pid
}

// processGone reports whether pid no longer runs. Zombies count as gone since
// orphans are reaped by whatever init the test runs under.
func processGone(pid int) bool {
	if errors.Is(unix.Kill(pid, 0), unix.ESRCH) {
		return true
	}
	stat, err := os.ReadFile(fmt.Sprintf("/proc/%d/stat", pid))
	if err != nil {
		return errors.Is(err, os.ErrNotExist)
	}
	i := bytes.LastIndexByte(stat, ')')
	return i >= 0 && i+2 < len(stat) && stat[i+2] == 'Z'
}

func tempConfigs(t *testing.T, dir string) []string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join(dir, "openvpn-*.ovpn"))
	require.NoError(t, err)
	return matches
}

var usRequest = Request{Host: "us1.nordvpn.com", IP: "192.0.2.1", Protocol: "udp"}

func TestOpenVPN_ForegroundSuccess(t *testing.T) {
	s, _ := fakeOpenVPN(t, `echo "Initialization Sequence Completed"
exec sleep 30`)
	o := NewOpenVPN(s, testutils.NewTestLogger())

	res, err := o.Launch(context.Background(), usRequest)
	require.NoError(t, err)
	require.True(t, res.Success)
	require.Greater(t, res.PID, 0)
	require.NotNil(t, res.Exited)
	assert.Len(t, tempConfigs(t, s.RuntimeDir), 1)

	require.NoError(t, o.Terminate(res.PID))
	select {
	case err := <-res.Exited:
		assert.Error(t, err, "terminated by signal")
	case <-time.After(testutils.TestTimeout):
		t.Fatal("process did not exit")
	}
	testutils.Eventually(t, func() bool { return len(tempConfigs(t, s.RuntimeDir)) == 0 })
	assert.True(t, processGone(res.PID))
}

func TestOpenVPN_EarlyExit(t *testing.T) {
	s, pidFile := fakeOpenVPN(t, `echo "AUTH_FAILED"
exit 1`)
	o := NewOpenVPN(s, testutils.NewTestLogger())

	res, err := o.Launch(context.Background(), usRequest)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, err.Error(), "exited before the tunnel came up")
	assert.Contains(t, err.Error(), "AUTH_FAILED")
	assert.True(t, processGone(scriptPid(t, pidFile)))
	assert.Empty(t, tempConfigs(t, s.RuntimeDir))
}

func TestOpenVPN_StartupTimeoutKillsProcess(t *testing.T) {
	s, pidFile := fakeOpenVPN(t, `exec sleep 30`)
	s.StartupTimeout = 200 * time.Millisecond
	o := NewOpenVPN(s, testutils.NewTestLogger())

	start := time.Now()
	_, err := o.Launch(context.Background(), usRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "did not come up within")
	assert.Less(t, time.Since(start), testutils.TestTimeout)
	assert.True(t, processGone(scriptPid(t, pidFile)))
	assert.Empty(t, tempConfigs(t, s.RuntimeDir))
}

func TestOpenVPN_CancelKillsProcess(t *testing.T) {
	s, pidFile := fakeOpenVPN(t, `exec sleep 30`)
	s.StartupTimeout = time.Minute
	o := NewOpenVPN(s, testutils.NewTestLogger())

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(200 * time.Millisecond)
		cancel()
	}()

	_, err := o.Launch(ctx, usRequest)
	assert.ErrorIs(t, err, context.Canceled)
	assert.True(t, processGone(scriptPid(t, pidFile)))
	assert.Empty(t, tempConfigs(t, s.RuntimeDir))
}

func TestOpenVPN_Daemon(t *testing.T) {
	s, _ := fakeOpenVPN(t, `while [ $# -gt 0 ]; do
  if [ "$1" = "--writepid" ]; then echo 4242 > "$2"; fi
  shift
done
exit 0`)
	o := NewOpenVPN(s, testutils.NewTestLogger())

	req := usRequest
	req.Daemon = true
	res, err := o.Launch(context.Background(), req)
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Equal(t, 4242, res.PID)
	assert.Nil(t, res.Exited)
}

func TestOpenVPN_DaemonFailure(t *testing.T) {
	s, _ := fakeOpenVPN(t, `echo "Options error: bad option" >&2
exit 1`)
	o := NewOpenVPN(s, testutils.NewTestLogger())

	req := usRequest
	req.Daemon = true
	_, err := o.Launch(context.Background(), req)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "Options error: bad option")
	assert.Empty(t, tempConfigs(t, s.RuntimeDir))
}

func TestOpenVPN_DaemonFailureKillsLeftovers(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		errorMsg string
	}{
		{
			name:     "Parent_Exits_Without_Pid",
			body:     "exit 0",
			errorMsg: "openvpn daemon wrote no pid",
		},
		{
			name:     "Parent_Hangs",
			body:     "exec sleep 30",
			errorMsg: "openvpn daemon did not start",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, pidFile := fakeOpenVPN(t, `(sleep 30 & echo $! > "$(dirname "$0")/child.pid")`+"\n"+tt.body)
			childPid := filepath.Join(filepath.Dir(pidFile), "child.pid")
			s.StartupTimeout = 500 * time.Millisecond
			o := NewOpenVPN(s, testutils.NewTestLogger())

			req := usRequest
			req.Daemon = true
			_, err := o.Launch(context.Background(), req)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errorMsg)

			child := scriptPid(t, childPid)
			testutils.Eventually(t, func() bool { return processGone(child) })
			assert.True(t, processGone(scriptPid(t, pidFile)))
			assert.Empty(t, tempConfigs(t, s.RuntimeDir))
		})
	}
}

func TestOpenVPN_DaemonIgnoresStaleCustomPidFile(t *testing.T) {
	s, _ := fakeOpenVPN(t, "exit 0")
	s.StartupTimeout = 300 * time.Millisecond
	o := NewOpenVPN(s, testutils.NewTestLogger())

	stale := filepath.Join(t.TempDir(), "custom.pid")
	require.NoError(t, os.WriteFile(stale, []byte("4194303\n"), 0o644))

	req := usRequest
	req.Daemon = true
	req.Options = "--writepid " + stale
	res, err := o.Launch(context.Background(), req)
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Contains(t, err.Error(), "wrote no pid")
	assert.NoFileExists(t, stale)
}

func TestOpenVPN_MissingBinary(t *testing.T) {
	s := testSettings(t)
	s.Binary = filepath.Join(t.TempDir(), "no-openvpn")

	_, err := NewOpenVPN(s, testutils.NewTestLogger()).Launch(context.Background(), usRequest)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "openvpn binary not found")
}

func TestOpenVPN_TerminateUnsupervised(t *testing.T) {
	s, pidFile := fakeOpenVPN(t, `exit 0`)
	o := NewOpenVPN(s, testutils.NewTestLogger())

	_, err := o.Launch(context.Background(), usRequest)
	require.Error(t, err)

	// The script has been reaped, so signalling its pid finds no process.
	assert.NoError(t, o.Terminate(scriptPid(t, pidFile)))
	assert.Error(t, o.Terminate(0))
}
