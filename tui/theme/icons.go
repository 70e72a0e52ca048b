package theme

import "os"

// EnvIcons selects the icon set: "nerd" or "ascii".
const EnvIcons = "BUILDHUB_ICONS"

// Nerd Font icons
const (
	nerdIconSuccess = "\U000F012C" // md-check
	nerdIconError   = "\uea87"     // cod-error
	nerdIconWarning = "\uf071"     // fa-warning
	nerdIconInfo    = "\U000F02FC" // md-information
	nerdIconRunning = "\uf021"     // fa-refresh
	nerdIconArrow   = "\U000F0054" // md-arrow_right
	nerdIconBullet  = "\uf444"     // oct-dot_fill
)

// ASCII fallbacks
const (
	asciiIconSuccess = "✓"
	asciiIconError   = "✗"
	asciiIconWarning = "!"
	asciiIconInfo    = "i"
	asciiIconRunning = "~"
	asciiIconArrow   = ">"
	asciiIconBullet  = "*"
)

// IconSet is the icons used in CLI and TUI output.
type IconSet struct {
	Success string
	Error   string
	Warning string
	Info    string
	Running string
	Arrow   string
	Bullet  string
}

// Icons is resolved once from BUILDHUB_ICONS. ASCII is the default.
var Icons = IconsFor(os.Getenv(EnvIcons))

// IconsFor returns the named icon set.
func IconsFor(name string) IconSet {
	if name == "nerd" {
		return IconSet{
			Success: nerdIconSuccess,
			Error:   nerdIconError,
			Warning: nerdIconWarning,
			Info:    nerdIconInfo,
			Running: nerdIconRunning,
			Arrow:   nerdIconArrow,
			Bullet:  nerdIconBullet,
		}
	}
	return IconSet{
		Success: asciiIconSuccess,
		Error:   asciiIconError,
		Warning: asciiIconWarning,
		Info:    asciiIconInfo,
		Running: asciiIconRunning,
		Arrow:   asciiIconArrow,
		Bullet:  asciiIconBullet,
	}
}

// ForLevel returns the icon for a message level.
func (s IconSet) ForLevel(level string) string {
	switch level {
	case "error":
		return s.Error
	case "warn", "warning":
		return s.Warning
	case "success":
		return s.Success
	default:
		return s.Info
	}
}
