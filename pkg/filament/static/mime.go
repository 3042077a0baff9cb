package static

import "strings"

// mimeType maps a file extension to its Content-Type. A data-driven table
// rather than a switch so the set is enumerable and easy to extend.
type mimeType struct {
	ext   string
	value string
}

var mimeTypes = []mimeType{
	{".html", "text/html"},
	{".xml", "text/xml"},
	{".xhtml", "application/xhtml+xml"},
	{".txt", "text/plain"},
	{".pdf", "application/pdf"},
	{".png", "image/png"},
	{".gif", "image/gif"},
	{".jpg", "image/jpeg"},
	{".css", "text/css"},
}

const defaultMimeType = "text/plain"

// ContentType returns the Content-Type for a resolved file path, keyed by
// the extension of its final component.
func ContentType(path string) string {
	last := path[strings.LastIndexByte(path, '/')+1:]
	dot := strings.LastIndexByte(last, '.')
	if dot < 0 {
		return defaultMimeType
	}
	ext := last[dot:]
	for _, m := range mimeTypes {
		if m.ext == ext {
			return m.value
		}
	}
	return defaultMimeType
}

// compressible reports whether a content type is worth gzip-encoding.
// Text formats compress well; the image and archive types in the table are
// already compressed.
func compressible(contentType string) bool {
	switch contentType {
	case "text/html", "text/xml", "text/plain", "text/css", "application/xhtml+xml":
		return true
	}
	return false
}
