package i18n

import (
	"os"
	"strings"

	"golang.org/x/text/language"
)

// DeviceLocale reads the POSIX locale of the host, e.g. "ru_RU.UTF-8".
func DeviceLocale() string {
	for _, key := range []string{"LC_ALL", "LC_MESSAGES", "LANG"} {
		v := strings.TrimSpace(os.Getenv(key))
		if v == "" || v == "C" || v == "POSIX" {
			continue
		}
		return v
	}
	return ""
}

// MatchLocale maps a device locale to a supported language code using its
// primary subtag.
func MatchLocale(locale string) (string, bool) {
	locale = strings.TrimSpace(locale)
	if i := strings.IndexAny(locale, ".@"); i >= 0 {
		locale = locale[:i]
	}
	locale = strings.ReplaceAll(locale, "_", "-")
	if locale == "" {
		return "", false
	}
	tag, err := language.Parse(locale)
	if err != nil {
		return "", false
	}
	base, conf := tag.Base()
	if conf == language.No {
		return "", false
	}
	code := base.String()
	if !IsSupported(code) {
		return "", false
	}
	return code, true
}
