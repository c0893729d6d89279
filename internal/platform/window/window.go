// Package window reads and restores the foreground window through robotgo.
package window

import (
	"context"
	"errors"
	"strings"

	"github.com/go-vgo/robotgo"

	"holdscribe/internal/domain"
)

// ErrNoActiveWindow is returned when the foreground window cannot be identified.
var ErrNoActiveWindow = errors.New("no active window")

// Tracker implements ports.FocusProbe. The window is identified by the PID of its
// owning process; the title is kept for logs and the overlay.
type Tracker struct {
	title    func() string
	pid      func() int
	activate func(pid int) error
}

func NewTracker() *Tracker {
	return &Tracker{
		title:    func() string { return robotgo.GetTitle() },
		pid:      func() int { return robotgo.GetPid() },
		activate: func(pid int) error { return robotgo.ActivePid(pid) },
	}
}

// ActiveWindow snapshots the foreground window.
func (w *Tracker) ActiveWindow(ctx context.Context) (domain.FocusTarget, error) {
	if err := ctx.Err(); err != nil {
		return domain.FocusTarget{}, err
	}
	pid := w.pid()
	if pid <= 0 {
		return domain.FocusTarget{}, ErrNoActiveWindow
	}
	return domain.FocusTarget{
		Title: strings.TrimSpace(w.title()),
		PID:   pid,
	}, nil
}

// Activate brings the target's process window back to the foreground.
func (w *Tracker) Activate(ctx context.Context, target domain.FocusTarget) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if target.PID <= 0 {
		return ErrNoActiveWindow
	}
	return w.activate(target.PID)
}
