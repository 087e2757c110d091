package core

import (
	"context"
	"strings"
	"testing"

	"github.com/JonMunkholm/csvsplit/internal/charset"
)

// ============================================================================
// Parsing Benchmarks
// ============================================================================

func BenchmarkParseTable_10kRows(b *testing.B) {
	text := string(csvRows(10000))
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseTable(text)
	}
}

func BenchmarkParseTable_CRLF(b *testing.B) {
	text := strings.ReplaceAll(string(csvRows(10000)), "\n", "\r\n")
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		ParseTable(text)
	}
}

// ============================================================================
// Detection Benchmarks
// ============================================================================

func BenchmarkDetect_ASCII(b *testing.B) {
	data := csvRows(10000)
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		charset.Detect(data)
	}
}

func BenchmarkDetect_GBK(b *testing.B) {
	data, err := charset.Encode("编号,名称\n1,苹果\n2,香蕉\n", charset.GBK, false)
	if err != nil {
		b.Fatal(err)
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		charset.Detect(data)
	}
}

// ============================================================================
// Split Benchmarks
// ============================================================================

func BenchmarkSplit_UTF8(b *testing.B) {
	table := makeTable(100000)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Split(ctx, table, 1000, "bench", charset.UTF8); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSplit_GBK(b *testing.B) {
	table := makeTable(100000)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Split(ctx, table, 1000, "bench", charset.GBK); err != nil {
			b.Fatal(err)
		}
	}
}

func BenchmarkSplit_Workers(b *testing.B) {
	table := makeTable(100000)
	ctx := context.Background()
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := Split(ctx, table, 1000, "bench", charset.UTF8, WithWorkers(4)); err != nil {
			b.Fatal(err)
		}
	}
}
