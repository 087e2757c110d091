package core

import "strings"

// ParsedTable is a decoded table file: the header line and its data rows.
type ParsedTable struct {
	Header string   // First line, verbatim
	Rows   []string // Remaining non-blank lines, in file order
}

// ParseTable splits text on "\n" or "\r\n". The first line is the header;
// every later line that is empty or whitespace-only is dropped. A lone "\r"
// is not a line break. Quoted fields spanning lines are not recognised.
func ParseTable(text string) ParsedTable {
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = strings.TrimSuffix(line, "\r")
	}

	rows := make([]string, 0, len(lines)-1)
	for _, line := range lines[1:] {
		if strings.TrimSpace(line) == "" {
			continue
		}
		rows = append(rows, line)
	}

	return ParsedTable{Header: lines[0], Rows: rows}
}

// Len returns the number of data rows.
func (t ParsedTable) Len() int {
	return len(t.Rows)
}

// Empty reports whether the table has no data rows.
func (t ParsedTable) Empty() bool {
	return len(t.Rows) == 0
}

// TotalLines counts the header plus the data rows.
func (t ParsedTable) TotalLines() int {
	return len(t.Rows) + 1
}
