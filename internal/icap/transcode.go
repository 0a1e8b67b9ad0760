package icap

import (
	"strings"

	"golang.org/x/text/transform"
)

// DefaultTextMIMETypes lists the content type prefixes written in text mode.
var DefaultTextMIMETypes = []string{
	"text/",
	"application/json",
	"application/ld+json",
	"application/xml",
	"application/xhtml+xml",
	"application/javascript",
	"application/ecmascript",
	"application/x-javascript",
	"application/x-sh",
	"application/x-csh",
	"application/x-httpd-php",
	"application/x-yaml",
	"application/yaml",
	"application/toml",
	"application/sql",
	"application/rtf",
	"image/svg+xml",
	"message/rfc822",
}

// IsTextContentType reports whether contentType starts with one of prefixes.
func IsTextContentType(contentType string, prefixes []string) bool {
	for _, p := range prefixes {
		if p != "" && strings.HasPrefix(contentType, p) {
			return true
		}
	}
	return false
}

// asciiTransformer clears the high bit of every byte. Output length always
// equals input length.
type asciiTransformer struct {
	transform.NopResetter
}

// Transform implements transform.Transformer.
func (asciiTransformer) Transform(dst, src []byte, _ bool) (nDst, nSrc int, err error) {
	n := len(src)
	if n > len(dst) {
		n = len(dst)
		err = transform.ErrShortDst
	}
	for i := 0; i < n; i++ {
		dst[i] = src[i] & 0x7f
	}
	return n, n, err
}
