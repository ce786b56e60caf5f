package vfskit

import (
	"mime"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// MIMETypeTextPlain is the mimetype reported when nothing better is known.
const MIMETypeTextPlain = "text/plain"

// extensionToMIME covers the extensions content sniffing gets wrong or can
// not see, mostly text formats.
var extensionToMIME = map[string]string{
	"txt":   MIMETypeTextPlain,
	"html":  "text/html",
	"htm":   "text/html",
	"css":   "text/css",
	"js":    "text/javascript",
	"mjs":   "text/javascript",
	"json":  "application/json",
	"xml":   "application/xml",
	"csv":   "text/csv",
	"md":    "text/markdown",
	"yaml":  "application/yaml",
	"yml":   "application/yaml",
	"svg":   "image/svg+xml",
	"jpg":   "image/jpeg",
	"jpeg":  "image/jpeg",
	"png":   "image/png",
	"gif":   "image/gif",
	"webp":  "image/webp",
	"mp3":   "audio/mpeg",
	"ogg":   "audio/ogg",
	"mp4":   "video/mp4",
	"webm":  "video/webm",
	"pdf":   "application/pdf",
	"zip":   "application/zip",
	"gz":    "application/gzip",
	"tar":   "application/x-tar",
	"docx":  "application/vnd.openxmlformats-officedocument.wordprocessingml.document",
	"xlsx":  "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet",
	"pptx":  "application/vnd.openxmlformats-officedocument.presentationml.presentation",
	"woff":  "font/woff",
	"woff2": "font/woff2",
	"ttf":   "font/ttf",
	"otf":   "font/otf",
}

// genericTypes are sniffing results that say nothing about the format.
var genericTypes = map[string]bool{
	"":                         true,
	"application/octet-stream": true,
	"inode/x-empty":            true,
	"application/x-empty":      true,
	MIMETypeTextPlain:          true,
}

// GuessMimeType returns the mimetype of a file. The content is sniffed
// first; generic answers fall back to the extension, and text/plain is the
// final default.
func GuessMimeType(path string, content []byte) string {
	if len(content) > 0 {
		if detected := stripParams(mimetype.Detect(content).String()); !genericTypes[detected] {
			return detected
		}
	}
	if byExt := MimeTypeByExtension(Extension(path)); byExt != "" {
		return byExt
	}
	return MIMETypeTextPlain
}

// MimeTypeByExtension returns the mimetype registered for ext (without the
// leading dot), or "".
func MimeTypeByExtension(ext string) string {
	ext = strings.ToLower(ext)
	if ext == "" {
		return ""
	}
	if t, ok := extensionToMIME[ext]; ok {
		return t
	}
	return stripParams(mime.TypeByExtension("." + ext))
}

func stripParams(t string) string {
	if idx := strings.IndexByte(t, ';'); idx >= 0 {
		t = t[:idx]
	}
	return strings.TrimSpace(t)
}
