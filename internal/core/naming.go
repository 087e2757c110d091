package core

import (
	"fmt"
	"path/filepath"
	"strings"
	"time"
)

// BaseName strips the last extension from name. The extension is a final
// "." followed by at least one character that is neither "." nor "/".
// Names without one are returned unchanged.
func BaseName(name string) string {
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 || dot == len(name)-1 {
		return name
	}
	if strings.ContainsAny(name[dot+1:], "/") {
		return name
	}
	return name[:dot]
}

// PartName returns the output file name for the index-th chunk (1-based).
func PartName(base string, index int) string {
	return fmt.Sprintf("%s_part%d.csv", base, index)
}

// OutputDirName returns the directory name used for one split of base.
func OutputDirName(base string, at time.Time) string {
	return fmt.Sprintf("%s_split_%d", base, at.UnixMilli())
}

// OutputDirFor returns {dir of srcPath}/{base}_split_{epoch millis}.
func OutputDirFor(srcPath string, at time.Time) string {
	return filepath.Join(filepath.Dir(srcPath), OutputDirName(BaseName(filepath.Base(srcPath)), at))
}

// IsCSV reports whether name has a .csv extension (any case).
func IsCSV(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".csv")
}
