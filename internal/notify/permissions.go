package notify

// Permissions answers the two pre-dispatch checks: does the process hold
// notification-post permission, and has the user left notifications enabled
// at the OS level. Both denials are user choices, not failures.
type Permissions interface {
	PostGranted() bool
	NotificationsEnabled() bool
}

// StaticPermissions is a fixed Permissions answer, used headless and in tests.
type StaticPermissions struct {
	Granted bool
	Enabled bool
}

func (p StaticPermissions) PostGranted() bool          { return p.Granted }
func (p StaticPermissions) NotificationsEnabled() bool { return p.Enabled }

// AllowAll grants everything (the default for a daemon deployment, where no
// OS-level notification toggle exists).
func AllowAll() Permissions { return StaticPermissions{Granted: true, Enabled: true} }
