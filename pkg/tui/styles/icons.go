package styles

const (
	IconAlive   = "●"
	IconDead    = "○"
	IconError   = "✗"
	IconWarning = "⚠"
	IconInfo    = "ℹ"
	IconBullet  = "•"
)

func StatusIcon(alive bool) string {
	if alive {
		return IconAlive
	}
	return IconDead
}

func LogLevelIcon(level string) string {
	switch level {
	case "error", "ERROR":
		return IconError
	case "warn", "WARN", "warning", "WARNING":
		return IconWarning
	case "info", "INFO":
		return IconInfo
	default:
		return IconBullet
	}
}
