// Package charset detects, decodes and re-encodes the byte encodings a table
// file may arrive in.
//
// Only four encodings are recognised: UTF-8, UTF-16 (both byte orders) and
// GBK, the legacy 8-bit Chinese encoding. Detection is a layered heuristic
// (BOM, ASCII scan, sample validation, fallback); see [Detect].
package charset

import (
	"errors"
	"fmt"
	"strings"

	"golang.org/x/text/encoding"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

// Tag identifies the byte encoding of a loaded file.
type Tag string

const (
	UTF8    Tag = "utf8"
	UTF16LE Tag = "utf16le"
	UTF16BE Tag = "utf16be"
	GBK     Tag = "gbk"
)

// Tags lists every supported tag in detection priority order.
var Tags = []Tag{UTF8, UTF16LE, UTF16BE, GBK}

var (
	// ErrDecode is wrapped by every failure to turn bytes into text.
	ErrDecode = errors.New("encoding error: bytes are not valid for the detected encoding")

	// ErrEncode is wrapped when text cannot be represented in the target encoding.
	ErrEncode = errors.New("encoding error: text cannot be represented in the target encoding")

	// ErrUnknownTag is returned for tags outside the supported set.
	ErrUnknownTag = errors.New("unknown encoding")
)

// Byte-order marks.
var (
	bomUTF8    = []byte{0xEF, 0xBB, 0xBF}
	bomUTF16LE = []byte{0xFF, 0xFE}
	bomUTF16BE = []byte{0xFE, 0xFF}
)

// Valid reports whether t is one of the supported tags.
func (t Tag) Valid() bool {
	switch t {
	case UTF8, UTF16LE, UTF16BE, GBK:
		return true
	}
	return false
}

func (t Tag) String() string {
	return string(t)
}

// Label returns the conventional display name (e.g. "UTF-16LE").
func (t Tag) Label() string {
	switch t {
	case UTF8:
		return "UTF-8"
	case UTF16LE:
		return "UTF-16LE"
	case UTF16BE:
		return "UTF-16BE"
	case GBK:
		return "GBK"
	}
	return strings.ToUpper(string(t))
}

// BOM returns the byte-order mark for t, or nil for encodings without one.
func (t Tag) BOM() []byte {
	switch t {
	case UTF8:
		return bomUTF8
	case UTF16LE:
		return bomUTF16LE
	case UTF16BE:
		return bomUTF16BE
	}
	return nil
}

// Encoding returns the x/text codec for t. UTF-16 codecs ignore BOMs;
// callers strip and prepend them explicitly.
func (t Tag) Encoding() (encoding.Encoding, error) {
	switch t {
	case UTF8:
		return unicode.UTF8, nil
	case UTF16LE:
		return unicode.UTF16(unicode.LittleEndian, unicode.IgnoreBOM), nil
	case UTF16BE:
		return unicode.UTF16(unicode.BigEndian, unicode.IgnoreBOM), nil
	case GBK:
		return simplifiedchinese.GBK, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownTag, string(t))
}
