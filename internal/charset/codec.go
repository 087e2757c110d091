package charset

import (
	"bytes"
	"fmt"
	"unicode/utf8"
)

// Decode converts data from tag into a Go string. A leading BOM for tag is
// removed. Bytes that are not valid under tag are an error wrapping
// ErrDecode; nothing is silently replaced.
func Decode(data []byte, tag Tag) (string, error) {
	data = StripBOM(data, tag)

	switch tag {
	case UTF8:
		if !utf8.Valid(data) {
			return "", fmt.Errorf("%w: invalid utf-8 at byte %d", ErrDecode, firstInvalidUTF8(data))
		}
		return string(data), nil

	case UTF16LE, UTF16BE:
		if len(data)%2 != 0 {
			return "", fmt.Errorf("%w: odd byte count %d for %s", ErrDecode, len(data), tag.Label())
		}
		out, err := decodeWith(data, tag)
		if err != nil {
			return "", err
		}
		// Unpaired surrogates decode to U+FFFD; literal U+FFFD code units are legitimate.
		if bytes.Count(out, []byte(string(utf8.RuneError))) != countUnit16(data, tag, 0xFFFD) {
			return "", fmt.Errorf("%w: unpaired surrogate in %s data", ErrDecode, tag.Label())
		}
		return string(out), nil

	case GBK:
		out, err := decodeWith(data, tag)
		if err != nil {
			return "", err
		}
		// U+FFFD has no GBK encoding, so any occurrence marks an invalid sequence.
		if i := bytes.IndexRune(out, utf8.RuneError); i >= 0 {
			return "", fmt.Errorf("%w: invalid gbk sequence near output offset %d", ErrDecode, i)
		}
		// A few codes (A2E3, A3A0) decode to runes whose canonical encoding
		// is different bytes; reject them so outputs match the source.
		if err := checkRoundTrip(data, out, tag); err != nil {
			return "", err
		}
		return string(out), nil
	}

	return "", fmt.Errorf("%w: %q", ErrUnknownTag, string(tag))
}

// Encode converts text into tag. When withBOM is set and tag has a
// byte-order mark, the mark is written first.
func Encode(text string, tag Tag, withBOM bool) ([]byte, error) {
	var body []byte

	switch tag {
	case UTF8:
		if !utf8.ValidString(text) {
			return nil, fmt.Errorf("%w: text is not valid utf-8", ErrEncode)
		}
		body = []byte(text)

	case UTF16LE, UTF16BE, GBK:
		enc, err := tag.Encoding()
		if err != nil {
			return nil, err
		}
		body, err = enc.NewEncoder().Bytes([]byte(text))
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrEncode, tag.Label(), err)
		}

	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTag, string(tag))
	}

	if !withBOM || tag.BOM() == nil {
		return body, nil
	}
	out := make([]byte, 0, len(tag.BOM())+len(body))
	out = append(out, tag.BOM()...)
	return append(out, body...), nil
}

// StripBOM removes tag's byte-order mark from the front of data, if present.
func StripBOM(data []byte, tag Tag) []byte {
	if bom := tag.BOM(); bom != nil && bytes.HasPrefix(data, bom) {
		return data[len(bom):]
	}
	return data
}

func decodeWith(data []byte, tag Tag) ([]byte, error) {
	enc, err := tag.Encoding()
	if err != nil {
		return nil, err
	}
	out, err := enc.NewDecoder().Bytes(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrDecode, tag.Label(), err)
	}
	return out, nil
}

func checkRoundTrip(src, decoded []byte, tag Tag) error {
	enc, err := tag.Encoding()
	if err != nil {
		return err
	}
	again, err := enc.NewEncoder().Bytes(decoded)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", ErrDecode, tag.Label(), err)
	}
	if bytes.Equal(again, src) {
		return nil
	}
	i := 0
	for i < len(src) && i < len(again) && src[i] == again[i] {
		i++
	}
	return fmt.Errorf("%w: %s sequence at byte %d does not survive re-encoding", ErrDecode, tag.Label(), i)
}

func firstInvalidUTF8(data []byte) int {
	for i := 0; i < len(data); {
		r, size := utf8.DecodeRune(data[i:])
		if r == utf8.RuneError && size <= 1 {
			return i
		}
		i += size
	}
	return len(data)
}

// countUnit16 counts 16-bit code units equal to unit in data.
func countUnit16(data []byte, tag Tag, unit uint16) int {
	n := 0
	for i := 0; i+1 < len(data); i += 2 {
		var u uint16
		if tag == UTF16BE {
			u = uint16(data[i])<<8 | uint16(data[i+1])
		} else {
			u = uint16(data[i+1])<<8 | uint16(data[i])
		}
		if u == unit {
			n++
		}
	}
	return n
}
