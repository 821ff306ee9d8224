//go:build windows

package platform

import (
	"github.com/go-toast/toast"
)

// Notify shows a toast in the Windows action centre.
func Notify(title, body string, opts Options) error {
	n := toast.Notification{
		AppID:   AppName,
		Title:   title,
		Message: body,
		Icon:    opts.IconPath,
	}
	if opts.timeout() > 10000 {
		n.Duration = toast.Long
	}
	return n.Push()
}
