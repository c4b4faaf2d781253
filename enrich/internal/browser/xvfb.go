package browser

import (
	"fmt"
	"os/exec"
	"time"
)

// xvfbWarmup is how long Xvfb gets to open its socket before Chrome starts.
const xvfbWarmup = 500 * time.Millisecond

func (m *Manager) startXvfb() error {
	if m.xvfb != nil {
		return nil
	}

	cmd := exec.Command("Xvfb", m.cfg.XvfbDisplay, "-screen", "0", "1280x1024x24", "-ac", "-nolisten", "tcp")
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("start %s: %w", m.cfg.XvfbDisplay, err)
	}
	m.xvfb = cmd
	time.Sleep(xvfbWarmup)

	m.cfg.Logger.Info("browser: xvfb started", "display", m.cfg.XvfbDisplay, "pid", cmd.Process.Pid)
	return nil
}

func (m *Manager) stopXvfb() {
	if m.xvfb == nil {
		return
	}
	if p := m.xvfb.Process; p != nil {
		_ = p.Kill()
		_ = m.xvfb.Wait()
	}
	m.xvfb = nil
	m.cfg.Logger.Info("browser: xvfb stopped", "display", m.cfg.XvfbDisplay)
}
