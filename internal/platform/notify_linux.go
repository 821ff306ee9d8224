//go:build linux

package platform

import (
	"sync"

	"github.com/godbus/dbus/v5"
)

const (
	notifyDest   = "org.freedesktop.Notifications"
	notifyPath   = dbus.ObjectPath("/org/freedesktop/Notifications")
	notifyMethod = notifyDest + ".Notify"
)

var (
	lastMu sync.Mutex
	// lastID is the notification the next one replaces.
	lastID uint32
)

// Notify sends a notification over the session bus.
func Notify(title, body string, opts Options) error {
	conn, err := dbus.ConnectSessionBus()
	if err != nil {
		return err
	}
	defer conn.Close()

	hints := map[string]dbus.Variant{
		"category":      dbus.MakeVariant("im.received"),
		"desktop-entry": dbus.MakeVariant("sketchtutor"),
	}
	if opts.IconPath != "" {
		hints["image-path"] = dbus.MakeVariant(opts.IconPath)
	}

	lastMu.Lock()
	defer lastMu.Unlock()
	var id uint32
	err = conn.Object(notifyDest, notifyPath).
		Call(notifyMethod, 0, AppName, lastID, opts.IconPath, title, body, []string{}, hints, opts.timeout()).
		Store(&id)
	if err != nil {
		return err
	}
	lastID = id
	return nil
}
