package platform

import "github.com/gen2brain/beeep"

// DesktopNotifier shows native desktop notifications.
type DesktopNotifier struct{}

func NewDesktopNotifier() *DesktopNotifier {
	return &DesktopNotifier{}
}

func (DesktopNotifier) Notify(title string, message string) error {
	return beeep.Notify(title, message, "")
}
