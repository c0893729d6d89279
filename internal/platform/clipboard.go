package platform

import (
	"context"
	"strings"

	"github.com/atotto/clipboard"
)

// SystemClipboard reads and writes the OS clipboard as plain text.
type SystemClipboard struct {
	read  func() (string, error)
	write func(string) error
}

func NewSystemClipboard() *SystemClipboard {
	return &SystemClipboard{read: clipboard.ReadAll, write: clipboard.WriteAll}
}

// Text returns the clipboard text. An empty selection reads as "".
func (c *SystemClipboard) Text(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	text, err := c.read()
	if err != nil {
		if isEmptySelection(err) {
			return "", nil
		}
		return "", err
	}
	return text, nil
}

func (c *SystemClipboard) SetText(ctx context.Context, text string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return c.write(text)
}

// isEmptySelection recognises the X11/Wayland helpers' "nothing copied" failures.
func isEmptySelection(err error) bool {
	msg := strings.ToLower(err.Error())
	for _, marker := range []string{"not available", "no selection", "nothing is copied"} {
		if strings.Contains(msg, marker) {
			return true
		}
	}
	return false
}
