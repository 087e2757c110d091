package charset

import (
	"bytes"
	"unicode/utf8"

	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/encoding/unicode"
)

const (
	// scanLimit bounds the high-bit scan.
	scanLimit = 1000

	// sampleLimit bounds the sample that is trial-decoded.
	sampleLimit = 100
)

// Confidence grades a detection result.
type Confidence string

const (
	// Certain means a byte-order mark named the encoding.
	Certain Confidence = "certain"
	// High means the bytes were ASCII or a sample decoded cleanly.
	High Confidence = "high"
	// Low means neither sample decode was clean and GBK was assumed.
	Low Confidence = "low"
)

// DetectionResult is the outcome of Detect.
type DetectionResult struct {
	Tag        Tag        `json:"encoding"`
	Confidence Confidence `json:"confidence"`
	BOM        bool       `json:"bom"`
	Reason     string     `json:"reason"`
}

// Ambiguous reports whether the tag is the documented fallback rather than
// a positive identification.
func (r DetectionResult) Ambiguous() bool {
	return r.Confidence == Low
}

// Detect guesses the encoding of data. It never fails.
//
// The layers run in a fixed order: BOM, high-bit scan of the first 1000
// bytes, trial decode of the first 100 bytes as UTF-8 then GBK, and finally
// the GBK fallback. The trial decode is authoritative over the scan.
func Detect(data []byte) DetectionResult {
	switch {
	case bytes.HasPrefix(data, bomUTF8):
		return DetectionResult{Tag: UTF8, Confidence: Certain, BOM: true, Reason: "utf-8 byte-order mark"}
	case bytes.HasPrefix(data, bomUTF16LE):
		return DetectionResult{Tag: UTF16LE, Confidence: Certain, BOM: true, Reason: "utf-16le byte-order mark"}
	case bytes.HasPrefix(data, bomUTF16BE):
		return DetectionResult{Tag: UTF16BE, Confidence: Certain, BOM: true, Reason: "utf-16be byte-order mark"}
	}

	if !hasHighBit(head(data, scanLimit)) {
		return DetectionResult{Tag: UTF8, Confidence: High, Reason: "ascii only"}
	}

	if cleanUTF8(utf8Sample(data)) {
		return DetectionResult{Tag: UTF8, Confidence: High, Reason: "sample is valid utf-8"}
	}
	if cleanGBK(gbkSample(data)) {
		return DetectionResult{Tag: GBK, Confidence: High, Reason: "sample is valid gbk"}
	}

	return DetectionResult{Tag: GBK, Confidence: Low, Reason: "ambiguous sample, assuming gbk"}
}

func head(data []byte, n int) []byte {
	if len(data) > n {
		return data[:n]
	}
	return data
}

func hasHighBit(data []byte) bool {
	for _, b := range data {
		if b >= 0x80 {
			return true
		}
	}
	return false
}

// cleanUTF8 trial-decodes sample and reports whether the output is free of
// replacement characters.
func cleanUTF8(sample []byte) bool {
	out, err := unicode.UTF8.NewDecoder().Bytes(sample)
	if err != nil {
		return false
	}
	return !bytes.ContainsRune(out, utf8.RuneError)
}

func cleanGBK(sample []byte) bool {
	out, err := simplifiedchinese.GBK.NewDecoder().Bytes(sample)
	if err != nil {
		return false
	}
	return !bytes.ContainsRune(out, utf8.RuneError)
}

// utf8Sample returns the first sampleLimit bytes of data, extended by up to
// three bytes when the cut would split a multi-byte sequence.
func utf8Sample(data []byte) []byte {
	end := min(len(data), sampleLimit)
	for extra := 0; extra < utf8.UTFMax-1 && end < len(data) && endsMidRune(data[:end]); extra++ {
		end++
	}
	return data[:end]
}

func endsMidRune(b []byte) bool {
	for i := 1; i < utf8.UTFMax && i <= len(b); i++ {
		start := len(b) - i
		if utf8.RuneStart(b[start]) {
			return !utf8.FullRune(b[start:])
		}
	}
	return false
}

// gbkSample is utf8Sample for GBK's one- and two-byte sequences.
func gbkSample(data []byte) []byte {
	end := min(len(data), sampleLimit)
	i := 0
	for i < end {
		if isGBKSingle(data[i]) {
			i++
			continue
		}
		i += 2
	}
	return data[:min(i, len(data))]
}

// isGBKSingle reports whether c is a complete GBK character on its own.
func isGBKSingle(c byte) bool {
	return c < 0x81 || c == 0xFF
}
