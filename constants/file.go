package constants

import (
	"bytes"
	"strings"
	"unicode/utf8"
)

// DocKind is the materialization strategy for a fetched document.
type DocKind string

const (
	PDF     DocKind = "PDF"
	HTML    DocKind = "HTML"
	TXT     DocKind = "TXT"
	Unknown DocKind = ""
)

// DescriptorExtensions holds the file extensions accepted as descriptor sources.
var DescriptorExtensions = map[string]struct{}{
	"csv":  {},
	"xlsx": {},
}

// NormalizeExt lowercases and trims the dot from a file extension.
func NormalizeExt(ext string) string {
	return strings.ToLower(strings.TrimPrefix(ext, "."))
}

// MapExtToKind maps a file extension to a document kind.
func MapExtToKind(ext string) DocKind {
	switch NormalizeExt(ext) {
	case "pdf":
		return PDF
	case "html", "htm", "shtml":
		return HTML
	case "txt", "text":
		return TXT
	}
	return Unknown
}

// SniffKind inspects the leading bytes of a body.
func SniffKind(body []byte) DocKind {
	head := body
	if len(head) > 1024 {
		head = head[:1024]
	}
	head = bytes.TrimLeft(head, "\xef\xbb\xbf \t\r\n")
	if bytes.HasPrefix(head, []byte("%PDF-")) {
		return PDF
	}
	lower := bytes.ToLower(head)
	if bytes.HasPrefix(lower, []byte("<!doctype html")) || bytes.HasPrefix(lower, []byte("<html")) ||
		bytes.Contains(lower, []byte("<body")) || bytes.Contains(lower, []byte("<table")) {
		return HTML
	}
	if len(body) > 0 && utf8.Valid(body) {
		return TXT
	}
	return Unknown
}
