//go:build darwin

package platform

import (
	"fmt"
	"os/exec"
)

// Notify posts to Notification Center through osascript. Icons are not
// supported there.
func Notify(title, body string, _ Options) error {
	script := fmt.Sprintf("display notification %q with title %q", body, title)
	if out, err := exec.Command("osascript", "-e", script).CombinedOutput(); err != nil {
		return fmt.Errorf("osascript: %w: %s", err, out)
	}
	return nil
}
