package popup

import (
	"fmt"
	"os"
	"os/exec"
	"sync"
)

// ExecOpener opens the authorization page in a dedicated browser process
// running in app mode. Each window gets a throwaway profile so the process
// lives exactly as long as the window does.
type ExecOpener struct {
	// Browser is the executable name or path, e.g. "chromium".
	Browser string
	// ExtraArgs are appended before the window flags.
	ExtraArgs []string
}

// Open starts the browser. A start failure is reported as the window being
// blocked.
func (o ExecOpener) Open(url string, g Geometry) (Window, error) {
	profile, err := os.MkdirTemp("", "invoicer-auth-*")
	if err != nil {
		return nil, fmt.Errorf("create browser profile: %w", err)
	}

	args := append([]string(nil), o.ExtraArgs...)
	args = append(args,
		"--app="+url,
		fmt.Sprintf("--window-size=%d,%d", g.Width, g.Height),
		fmt.Sprintf("--window-position=%d,%d", g.Left, g.Top),
		"--user-data-dir="+profile,
		"--no-first-run",
		"--no-default-browser-check",
	)

	cmd := exec.Command(o.Browser, args...)
	if err := cmd.Start(); err != nil {
		_ = os.RemoveAll(profile)
		return nil, fmt.Errorf("start %s: %w", o.Browser, err)
	}

	w := &processWindow{cmd: cmd, exited: make(chan struct{})}
	go func() {
		_ = cmd.Wait()
		_ = os.RemoveAll(profile)
		close(w.exited)
	}()
	return w, nil
}

type processWindow struct {
	cmd    *exec.Cmd
	exited chan struct{}
	once   sync.Once
}

func (w *processWindow) Closed() bool {
	select {
	case <-w.exited:
		return true
	default:
		return false
	}
}

func (w *processWindow) Close() error {
	var err error
	w.once.Do(func() {
		if w.Closed() {
			return
		}
		err = w.cmd.Process.Kill()
	})
	return err
}
