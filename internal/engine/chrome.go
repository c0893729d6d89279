package engine

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sync"
	"time"

	"holdscribe/internal/ports"
)

const defaultStartupGrace = 250 * time.Millisecond

// ErrBrowserNotFound is returned when no Chrome/Chromium executable can be located.
var ErrBrowserNotFound = errors.New("no chrome or chromium executable found")

// ChromeConfig selects the browser and its isolated profile.
type ChromeConfig struct {
	BrowserPath string
	ProfileDir  string
	ExtraArgs   []string
}

// ChromeLauncher runs the recognition engine as an off-screen Chrome app window
// pointed at the bootstrap page.
type ChromeLauncher struct {
	cfg    ChromeConfig
	logger *slog.Logger

	startupGrace time.Duration

	lookPath func(string) (string, error)
	exists   func(string) bool
	goos     string
}

func NewChromeLauncher(cfg ChromeConfig, logger *slog.Logger) *ChromeLauncher {
	if logger == nil {
		logger = slog.Default()
	}
	return &ChromeLauncher{
		cfg:          cfg,
		logger:       logger,
		startupGrace: defaultStartupGrace,
		lookPath:     exec.LookPath,
		exists:       fileExists,
		goos:         runtime.GOOS,
	}
}

// BuildArgs returns the command line for an engine window at url using profileDir.
func BuildArgs(url string, profileDir string, extra []string) []string {
	args := []string{
		"--app=" + url,
		"--user-data-dir=" + profileDir,
		"--use-fake-ui-for-media-stream",
		"--disable-infobars",
		"--disable-session-crashed-bubble",
		"--autoplay-policy=no-user-gesture-required",
		"--window-position=-10000,-10000",
		"--window-size=10,10",
		"--no-first-run",
		"--no-default-browser-check",
		"--silent-launch",
		"--background",
	}
	return append(args, extra...)
}

// Launch starts the browser. It fails if the executable cannot be found or the
// process exits within the startup grace period.
func (l *ChromeLauncher) Launch(ctx context.Context, bootstrapURL string) (ports.EngineProcess, error) {
	executable, err := l.ResolveExecutable()
	if err != nil {
		return nil, err
	}
	if l.cfg.ProfileDir != "" {
		if err := os.MkdirAll(l.cfg.ProfileDir, 0o700); err != nil {
			return nil, fmt.Errorf("create engine profile dir: %w", err)
		}
	}

	// The engine outlives the launch call, so ctx only bounds startup.
	cmd := exec.Command(executable, BuildArgs(bootstrapURL, l.cfg.ProfileDir, l.cfg.ExtraArgs)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	// Browser helpers inherit stderr; do not let them hold Wait open.
	cmd.WaitDelay = time.Second

	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("failed to start engine browser: %w", err)
	}

	proc := &chromeProcess{
		process: cmd.Process,
		stderr:  &stderr,
		done:    make(chan struct{}),
	}
	go func() {
		proc.waitErr = cmd.Wait()
		close(proc.done)
	}()

	select {
	case <-proc.done:
		if proc.waitErr != nil {
			return nil, fmt.Errorf("engine browser exited before startup: %w: %s", proc.waitErr, trimSpace(stderr.String()))
		}
		return nil, errors.New("engine browser exited before startup")
	case <-ctx.Done():
		_ = proc.Kill()
		return nil, ctx.Err()
	case <-time.After(l.startupGrace):
	}

	l.logger.Info("engine browser launched", "path", executable, "pid", proc.PID())
	return proc, nil
}

// ResolveExecutable returns the configured browser path, a well-known install
// location for this OS, or the first matching name on PATH.
func (l *ChromeLauncher) ResolveExecutable() (string, error) {
	if l.cfg.BrowserPath != "" {
		if l.exists(l.cfg.BrowserPath) {
			return l.cfg.BrowserPath, nil
		}
		if resolved, err := l.lookPath(l.cfg.BrowserPath); err == nil {
			return resolved, nil
		}
		return "", fmt.Errorf("%w: configured path %q", ErrBrowserNotFound, l.cfg.BrowserPath)
	}
	for _, candidate := range knownLocations(l.goos) {
		if l.exists(candidate) {
			return candidate, nil
		}
	}
	for _, name := range pathNames(l.goos) {
		if resolved, err := l.lookPath(name); err == nil {
			return resolved, nil
		}
	}
	return "", ErrBrowserNotFound
}

func knownLocations(goos string) []string {
	switch goos {
	case "windows":
		return []string{
			`C:\Program Files\Google\Chrome\Application\chrome.exe`,
			`C:\Program Files (x86)\Google\Chrome\Application\chrome.exe`,
			filepath.Join(os.Getenv("LOCALAPPDATA"), `Google\Chrome\Application\chrome.exe`),
		}
	case "darwin":
		return []string{
			"/Applications/Google Chrome.app/Contents/MacOS/Google Chrome",
			"/Applications/Chromium.app/Contents/MacOS/Chromium",
		}
	default:
		return nil
	}
}

func pathNames(goos string) []string {
	if goos == "windows" {
		return []string{"chrome.exe", "chrome"}
	}
	return []string{"google-chrome", "google-chrome-stable", "chromium", "chromium-browser", "chrome"}
}

type chromeProcess struct {
	process *os.Process
	stderr  *bytes.Buffer

	done    chan struct{}
	waitErr error

	killOnce sync.Once
}

// Wait blocks until the browser exits. A non-zero exit status is reported as an error.
func (p *chromeProcess) Wait() error {
	<-p.done
	return p.waitErr
}

// Kill terminates the browser immediately and waits for it to be reaped.
func (p *chromeProcess) Kill() error {
	var killErr error
	p.killOnce.Do(func() {
		killErr = normalizeKillErr(p.process.Kill())
		<-p.done
	})
	return killErr
}

func (p *chromeProcess) PID() int {
	if p.process == nil {
		return 0
	}
	return p.process.Pid
}

func normalizeKillErr(err error) error {
	if err == nil || errors.Is(err, os.ErrProcessDone) {
		return nil
	}
	return err
}

func fileExists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && !info.IsDir()
}

func trimSpace(input string) string {
	if input == "" {
		return input
	}
	return string(bytes.TrimSpace([]byte(input)))
}
