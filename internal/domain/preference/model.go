package preference

// Theme names.
const (
	ThemeLight = "light"
	ThemeDark  = "dark"
)

// Theme is the stored UI theme.
type Theme struct {
	Theme string `json:"theme"`
}

// Normalize maps anything other than dark to light.
func Normalize(theme string) string {
	if theme == ThemeDark {
		return ThemeDark
	}
	return ThemeLight
}

// Valid reports whether theme names a known theme.
func Valid(theme string) bool {
	return theme == ThemeLight || theme == ThemeDark
}

// Toggle returns the opposite theme.
func Toggle(theme string) string {
	if Normalize(theme) == ThemeDark {
		return ThemeLight
	}
	return ThemeDark
}
