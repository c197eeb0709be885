package file

import (
	"path/filepath"
	"strings"
)

// ReplaceExt swaps the extension of path for ext; the leading dot of ext
// is optional. Names without an extension get ext appended.
func ReplaceExt(path, ext string) string {
	if path == "" {
		return path
	}
	if ext != "" && !strings.HasPrefix(ext, ".") {
		ext = "." + ext
	}

	dir, name := filepath.Split(path)
	if lastDot := strings.LastIndex(name, "."); lastDot > 0 {
		name = name[:lastDot]
	}
	return filepath.Join(dir, name+ext)
}

// LanguageVariant names the lang version of path: "show.srt" becomes
// "show.de.srt".
func LanguageVariant(path, lang string) string {
	return ReplaceExt(path, lang+filepath.Ext(path))
}

// IsLanguageVariant reports whether path is named like a lang version of
// another file.
func IsLanguageVariant(path, lang string) bool {
	if lang == "" {
		return false
	}
	name := filepath.Base(path)
	stem := strings.TrimSuffix(name, filepath.Ext(name))
	return strings.HasSuffix(strings.ToLower(stem), "."+strings.ToLower(lang))
}
