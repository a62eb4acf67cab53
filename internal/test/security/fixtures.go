// Package security holds hostile-input fixtures for the collection and
// analysis pipeline.
package security

import (
	"archive/zip"
	"crypto/rand"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"
)

// CreateZipBomb creates a small ZIP file that expands to a large size
func CreateZipBomb(t *testing.T, outputPath string, targetSize int64) {
	t.Helper()

	f, err := os.Create(outputPath)
	if err != nil {
		t.Fatalf("failed to create zip bomb: %v", err)
	}
	defer f.Close()

	zw := zip.NewWriter(f)
	defer zw.Close()

	w, err := zw.Create("bomb.go")
	if err != nil {
		t.Fatalf("failed to create zip entry: %v", err)
	}

	const blockSize = 1024
	block := make([]byte, blockSize)
	if _, err := rand.Read(block); err != nil {
		t.Fatalf("failed to generate random data: %v", err)
	}

	count := targetSize / blockSize
	if err := binary.Write(w, binary.LittleEndian, count); err != nil {
		t.Fatalf("failed to write count: %v", err)
	}
	if _, err := w.Write(block); err != nil {
		t.Fatalf("failed to write block: %v", err)
	}
}

// CreateSymlinkLoop creates a directory with a symlink loop. The links carry
// a source extension so they look analysable.
func CreateSymlinkLoop(t *testing.T, dir string) {
	t.Helper()

	a := filepath.Join(dir, "a.go")
	b := filepath.Join(dir, "b.go")

	if err := os.Symlink(b, a); err != nil {
		t.Fatalf("failed to create symlink a: %v", err)
	}
	if err := os.Symlink(a, b); err != nil {
		t.Fatalf("failed to create symlink b: %v", err)
	}

	loop := filepath.Join(dir, "loop")
	if err := os.Symlink(dir, loop); err != nil {
		t.Fatalf("failed to create directory loop: %v", err)
	}
}

// CreateBinaryBomb creates an executable disguised as a Go source file.
func CreateBinaryBomb(t *testing.T, outputPath string) {
	t.Helper()

	f, err := os.Create(outputPath)
	if err != nil {
		t.Fatalf("failed to create binary bomb: %v", err)
	}
	defer f.Close()

	header := []byte{
		0x7f, 0x45, 0x4c, 0x46, // ELF magic
		0x02,                   // 64-bit
		0x01,                   // Little endian
		0x01,                   // Version 1
		0x00,                   // System V ABI
		0x00, 0x00, 0x00, 0x00, // Padding
		0x02, 0x00, // Executable
		0x3e, 0x00, // x86-64
		0x01, 0x00, 0x00, 0x00, // Version 1
		0xeb, 0xfe, // jmp -2
		0xff, 0xfe, // not UTF-8
	}

	if _, err := f.Write(header); err != nil {
		t.Fatalf("failed to write ELF header: %v", err)
	}
}

// CreateOversized creates a sparse source file larger than limit.
func CreateOversized(t *testing.T, outputPath string, limit int64) {
	t.Helper()

	f, err := os.Create(outputPath)
	if err != nil {
		t.Fatalf("failed to create oversized file: %v", err)
	}
	defer f.Close()

	if err := f.Truncate(limit + 1); err != nil {
		t.Fatalf("failed to grow file: %v", err)
	}
}

// CreateDeepTree creates a source file depth directories down and returns
// its path.
func CreateDeepTree(t *testing.T, dir string, depth int, content string) string {
	t.Helper()

	deepDir := dir
	for i := 0; i < depth; i++ {
		deepDir = filepath.Join(deepDir, "deep")
	}
	if err := os.MkdirAll(deepDir, 0755); err != nil {
		t.Fatalf("failed to create deep directory: %v", err)
	}

	path := filepath.Join(deepDir, "file.go")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to create deep file: %v", err)
	}
	return path
}

// DeeplyNested returns Python source with n nested parentheses, which yields
// a very deep syntax tree.
func DeeplyNested(n int) string {
	return "x = " + strings.Repeat("(", n) + "1" + strings.Repeat(")", n) + "\n"
}
