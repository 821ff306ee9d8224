// Package platform sends desktop notifications through the host's native
// notification service.
package platform

// AppName is the application name shown by notification centres.
const AppName = "SketchTutor"

// Options configures how a notification is displayed on the host platform.
type Options struct {
	// IconPath, when non-empty, points to an image file the notification center
	// should display with the notification if supported by the platform.
	IconPath string
	// TimeoutMillis is how long the notification stays up; zero uses 5000.
	TimeoutMillis int32
}

func (o Options) timeout() int32 {
	if o.TimeoutMillis <= 0 {
		return 5000
	}
	return o.TimeoutMillis
}
