// Package static maps request URIs to files under a configured web root and
// writes complete HTTP responses for them. It is the collaborator the event
// loop hands a parsed request to; nothing in here touches epoll or the
// parser's buffers.
package static

import (
	"bytes"
	"errors"
	"strings"
)

// DefaultDocument is appended when a URI resolves to a directory.
const DefaultDocument = "index.html"

// ErrPathTraversal is returned for URIs with a ".." segment. Traversal is
// blocked outright rather than normalized; callers answer it with 404 so
// probes learn nothing about the filesystem layout.
var ErrPathTraversal = errors.New("static: path escapes web root")

// Resolver maps raw URI bytes to a filesystem path. The web root is an
// explicit field, threaded through construction, never process-wide state.
type Resolver struct {
	Root string
}

// Resolve maps a raw, unescaped URI byte span to a path under the root.
// The query-string suffix (first '?' onward) is stripped; no other
// normalization happens. A trailing slash, or a final path component
// without a dot, denotes a directory and gets the default document
// appended.
func (rv Resolver) Resolve(uri []byte) (string, error) {
	if i := bytes.IndexByte(uri, '?'); i >= 0 {
		uri = uri[:i]
	}

	p := string(uri)
	for _, seg := range strings.Split(p, "/") {
		if seg == ".." {
			return "", ErrPathTraversal
		}
	}

	full := strings.TrimSuffix(rv.Root, "/") + p

	last := full[strings.LastIndexByte(full, '/')+1:]
	if !strings.Contains(last, ".") && !strings.HasSuffix(full, "/") {
		full += "/"
	}
	if strings.HasSuffix(full, "/") {
		full += DefaultDocument
	}

	return full, nil
}
