package tunnel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"time"

	"github.com/gocircum/nordconnect/pkg/logging"
	"go.uber.org/multierr"
	"golang.org/x/sys/unix"
)

const (
	defaultStartupTimeout = 60 * time.Second
	terminateGrace        = 5 * time.Second
	pidPollInterval       = 50 * time.Millisecond
)

// OpenVPN launches openvpn processes and supervises the foreground ones.
type OpenVPN struct {
	settings Settings
	logger   logging.Logger

	mu     sync.Mutex
	active map[int]*process
}

type process struct {
	cmd       *exec.Cmd
	done      chan struct{}
	err       error
	tmpConfig string
}

// NewOpenVPN creates an OpenVPN launcher.
func NewOpenVPN(settings Settings, logger logging.Logger) *OpenVPN {
	if settings.Binary == "" {
		settings.Binary = "openvpn"
	}
	if settings.StartupTimeout <= 0 {
		settings.StartupTimeout = defaultStartupTimeout
	}
	return &OpenVPN{
		settings: settings,
		logger:   logging.ForComponent(logger, "tunnel.openvpn"),
		active:   make(map[int]*process),
	}
}

// Launch starts openvpn for req.
func (o *OpenVPN) Launch(ctx context.Context, req Request) (Result, error) {
	binary, err := exec.LookPath(o.settings.Binary)
	if err != nil {
		return Result{}, fmt.Errorf("openvpn binary not found: %w", err)
	}
	settings := o.settings
	settings.Binary = binary

	cmdLine, tmpConfig, err := BuildCommand(req, settings)
	if err != nil {
		return Result{}, err
	}
	pidFile, ok := cmdLine.Value("writepid")
	if !ok {
		pidFile = PidPath(settings.RuntimeDir)
	}
	if err := os.Remove(pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		removeTemp(tmpConfig, o.logger)
		return Result{}, fmt.Errorf("failed to remove stale pid file: %w", err)
	}

	o.logger.Info("Running openvpn", "command", cmdLine.String(), "daemon", req.Daemon)
	if req.Daemon {
		return o.launchDaemon(ctx, cmdLine, tmpConfig, pidFile)
	}
	return o.launchForeground(ctx, cmdLine, tmpConfig)
}

func (o *OpenVPN) launchForeground(ctx context.Context, cmdLine *Command, tmpConfig string) (Result, error) {
	watcher := newLineWatcher(InitializedMarker, o.logger)
	cmd := exec.Command(cmdLine.Binary, cmdLine.Args...)
	cmd.Stdout = watcher
	cmd.Stderr = watcher
	cmd.WaitDelay = terminateGrace

	if err := cmd.Start(); err != nil {
		removeTemp(tmpConfig, o.logger)
		return Result{}, fmt.Errorf("failed to start openvpn: %w", err)
	}
	p := &process{cmd: cmd, done: make(chan struct{}), tmpConfig: tmpConfig}
	go func() {
		p.err = cmd.Wait()
		close(p.done)
	}()

	success := false
	defer func() {
		if !success {
			if err := o.abort(p); err != nil {
				o.logger.Warn("Cleanup after failed launch was incomplete", "error", err)
			}
		}
	}()

	timer := time.NewTimer(o.settings.StartupTimeout)
	defer timer.Stop()

	select {
	case <-watcher.ready:
	case <-p.done:
		return Result{}, fmt.Errorf("openvpn exited before the tunnel came up: %w", exitError(p.err, watcher.Tail()))
	case <-timer.C:
		return Result{}, fmt.Errorf("openvpn did not come up within %s", o.settings.StartupTimeout)
	case <-ctx.Done():
		return Result{}, ctx.Err()
	}

	success = true
	pid := cmd.Process.Pid
	o.mu.Lock()
	o.active[pid] = p
	o.mu.Unlock()

	exited := make(chan error, 1)
	go func() {
		<-p.done
		o.mu.Lock()
		delete(o.active, pid)
		o.mu.Unlock()
		removeTemp(p.tmpConfig, o.logger)
		exited <- p.err
		close(exited)
	}()

	o.logger.Info("Tunnel is up", "pid", pid)
	return Result{Success: true, PID: pid, Exited: exited}, nil
}

// launchDaemon runs openvpn --daemon. The parent must exit cleanly and the
// daemon must write its pid file before the startup timeout. On failure the
// process group of the parent and the pid in the pid file are killed.
func (o *OpenVPN) launchDaemon(ctx context.Context, cmdLine *Command, tmpConfig, pidFile string) (Result, error) {
	ctx, cancel := context.WithTimeout(ctx, o.settings.StartupTimeout)
	defer cancel()

	// A file rather than a pipe, so children holding the output open do not
	// keep Wait from returning.
	output, err := os.CreateTemp("", "openvpn-daemon-*.log")
	if err != nil {
		removeTemp(tmpConfig, o.logger)
		return Result{}, fmt.Errorf("failed to create daemon output file: %w", err)
	}
	defer func() {
		output.Close()
		os.Remove(output.Name())
	}()

	cmd := exec.CommandContext(ctx, cmdLine.Binary, cmdLine.Args...)
	cmd.Stdout = output
	cmd.Stderr = output
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
	cmd.Cancel = func() error { return killGroup(cmd.Process.Pid) }
	cmd.WaitDelay = terminateGrace

	success := false
	defer func() {
		if !success {
			if err := o.reapDaemon(cmd, pidFile); err != nil {
				o.logger.Warn("Cleanup after failed daemon launch was incomplete", "error", err)
			}
			removeTemp(tmpConfig, o.logger)
		}
	}()

	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return Result{}, fmt.Errorf("openvpn daemon did not start: %w", ctx.Err())
		}
		out, _ := os.ReadFile(output.Name())
		return Result{}, fmt.Errorf("openvpn daemon failed: %w", exitError(err, lastLine(string(out))))
	}

	pid, err := waitForPid(ctx, pidFile)
	if err != nil {
		return Result{}, fmt.Errorf("openvpn daemon wrote no pid: %w", err)
	}
	success = true
	o.logger.Info("Tunnel daemon started", "pid", pid)
	return Result{Success: true, PID: pid}, nil
}

// reapDaemon kills what a failed daemon launch left behind: the process group
// of the launched parent and the daemon named in the pid file, if any.
func (o *OpenVPN) reapDaemon(cmd *exec.Cmd, pidFile string) error {
	var errs error
	if cmd.Process != nil {
		errs = multierr.Append(errs, killGroup(cmd.Process.Pid))
	}
	if pid, err := ReadPid(pidFile); err == nil {
		o.logger.Warn("Killing openvpn daemon of a failed launch", "pid", pid)
		if err := unix.Kill(pid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
			errs = multierr.Append(errs, fmt.Errorf("kill %d: %w", pid, err))
		}
	}
	if err := os.Remove(pidFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierr.Append(errs, err)
	}
	return errs
}

// killGroup sends SIGKILL to the process group pgid. A group with no members
// left is not an error.
func killGroup(pgid int) error {
	if pgid <= 0 {
		return nil
	}
	if err := unix.Kill(-pgid, unix.SIGKILL); err != nil && !errors.Is(err, unix.ESRCH) {
		return fmt.Errorf("kill process group %d: %w", pgid, err)
	}
	return nil
}

// Terminate sends SIGTERM to pid, escalating to SIGKILL for supervised
// processes that do not exit within the grace period.
func (o *OpenVPN) Terminate(pid int) error {
	if pid <= 0 {
		return fmt.Errorf("invalid pid %d", pid)
	}
	o.mu.Lock()
	p, supervised := o.active[pid]
	o.mu.Unlock()

	if !supervised {
		if err := unix.Kill(pid, unix.SIGTERM); err != nil {
			if errors.Is(err, unix.ESRCH) {
				return nil
			}
			return fmt.Errorf("failed to signal openvpn (pid %d): %w", pid, err)
		}
		o.logger.Info("Sent SIGTERM to openvpn", "pid", pid)
		return nil
	}

	if err := p.cmd.Process.Signal(unix.SIGTERM); err != nil && !errors.Is(err, os.ErrProcessDone) {
		return fmt.Errorf("failed to signal openvpn (pid %d): %w", pid, err)
	}
	select {
	case <-p.done:
		return nil
	case <-time.After(terminateGrace):
		o.logger.Warn("openvpn ignored SIGTERM, killing it", "pid", pid)
		if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			return err
		}
		<-p.done
		return nil
	}
}

// abort kills a process that never came up, reaps it and removes its temp config.
func (o *OpenVPN) abort(p *process) error {
	var errs error
	if err := p.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
		errs = multierr.Append(errs, fmt.Errorf("kill: %w", err))
	}
	<-p.done
	if err := os.Remove(p.tmpConfig); err != nil && !errors.Is(err, os.ErrNotExist) {
		errs = multierr.Append(errs, fmt.Errorf("remove %s: %w", p.tmpConfig, err))
	}
	return errs
}

func waitForPid(ctx context.Context, path string) (int, error) {
	ticker := time.NewTicker(pidPollInterval)
	defer ticker.Stop()
	for {
		if pid, err := ReadPid(path); err == nil {
			return pid, nil
		}
		select {
		case <-ctx.Done():
			return 0, ctx.Err()
		case <-ticker.C:
		}
	}
}

// ReadPid returns the pid recorded in an openvpn --writepid file.
func ReadPid(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, err
	}
	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, fmt.Errorf("malformed pid file %s", path)
	}
	return pid, nil
}

func removeTemp(path string, logger logging.Logger) {
	if path == "" {
		return
	}
	if err := os.Remove(path); err != nil && !errors.Is(err, os.ErrNotExist) {
		logger.Warn("Failed to remove temporary openvpn configuration", "path", path, "error", err)
	}
}

func exitError(err error, tail string) error {
	if err == nil {
		err = errors.New("exit status 0")
	}
	if tail == "" {
		return err
	}
	return fmt.Errorf("%w (last output: %s)", err, tail)
}

func lastLine(s string) string {
	lines := strings.Split(strings.TrimSpace(s), "\n")
	return strings.TrimSpace(lines[len(lines)-1])
}

// lineWatcher receives the process output, logs it line by line and closes
// ready when the marker shows up.
type lineWatcher struct {
	marker string
	logger logging.Logger
	ready  chan struct{}

	mu   sync.Mutex
	buf  []byte
	last string
	once sync.Once
}

func newLineWatcher(marker string, logger logging.Logger) *lineWatcher {
	return &lineWatcher{marker: marker, logger: logger, ready: make(chan struct{})}
}

func (w *lineWatcher) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.buf = append(w.buf, p...)
	for {
		i := bytes.IndexByte(w.buf, '\n')
		if i < 0 {
			break
		}
		line := strings.TrimSpace(string(w.buf[:i]))
		w.buf = w.buf[i+1:]
		if line == "" {
			continue
		}
		w.last = line
		w.logger.Debug("openvpn", "line", line)
		if strings.Contains(line, w.marker) {
			w.once.Do(func() { close(w.ready) })
		}
	}
	return len(p), nil
}

// Tail returns the last complete output line.
func (w *lineWatcher) Tail() string {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.last
}
