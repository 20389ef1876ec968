// Package i18n resolves UI strings for the active language and keeps the
// user's language choice across restarts.
package i18n

// Language describes one selectable UI language.
type Language struct {
	Code       string `json:"code"`
	Name       string `json:"name"`
	NativeName string `json:"native_name"`
	Flag       string `json:"flag"`
	RTL        bool   `json:"rtl"`
}

// DefaultCode is used when nothing better is known, and is the fallback table
// for missing keys.
const DefaultCode = "en"

var available = []Language{
	{Code: "en", Name: "English", NativeName: "English", Flag: "🇺🇸"},
	{Code: "ru", Name: "Russian", NativeName: "Русский", Flag: "🇷🇺"},
}

// Available lists the supported languages in display order.
func Available() []Language {
	out := make([]Language, len(available))
	copy(out, available)
	return out
}

// Lookup returns the language for code.
func Lookup(code string) (Language, bool) {
	for _, l := range available {
		if l.Code == code {
			return l, true
		}
	}
	return Language{}, false
}

// IsSupported reports whether code is one of the available languages.
func IsSupported(code string) bool {
	_, ok := Lookup(code)
	return ok
}
