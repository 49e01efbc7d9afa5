package library

import (
	"path"
	"strconv"
	"strings"
)

// SanitizeName makes a book name safe to use as a directory or file name.
func SanitizeName(name string) string {
	invalid := []string{"/", "\\", ":", "*", "?", "\"", "<", ">", "|"}
	result := name
	for _, char := range invalid {
		result = strings.ReplaceAll(result, char, "_")
	}
	result = strings.TrimSpace(result)
	result = strings.Trim(result, ".")
	if result == "" {
		return "_"
	}
	return result
}

// ChapterDir is the cache directory of a chapter: <book>/<chapter>.
func ChapterDir(book BookName, chapter uint16) string {
	return path.Join(SanitizeName(string(book)), strconv.Itoa(int(chapter)))
}

// ContentPath names unit seq inside dir, with a .jpg or .txt extension.
func ContentPath(dir string, seq uint16, image bool) string {
	ext := ".txt"
	if image {
		ext = ".jpg"
	}
	return path.Join(dir, strconv.Itoa(int(seq))+ext)
}
