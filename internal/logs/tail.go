package logs

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
)

const maxLine = 1024 * 1024

// Last returns up to n trailing lines of path and the offset after them.
// A missing file yields no lines.
func Last(path string, n int) ([]string, int64, error) {
	lines, offset, err := Since(path, 0)
	if err != nil || n <= 0 {
		return nil, offset, err
	}
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return lines, offset, nil
}

// Since returns the complete lines written at or after offset. If the file
// shrank below offset it was rotated, and reading restarts at zero.
func Since(path string, offset int64) ([]string, int64, error) {
	file, err := os.Open(path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return nil, 0, nil
		}
		return nil, offset, fmt.Errorf("open log file: %w", err)
	}
	defer file.Close()

	info, err := file.Stat()
	if err != nil {
		return nil, offset, fmt.Errorf("stat log file: %w", err)
	}
	if info.IsDir() {
		return nil, offset, fmt.Errorf("log path %q is a directory", path)
	}
	if offset < 0 || offset > info.Size() {
		offset = 0
	}
	if _, err := file.Seek(offset, io.SeekStart); err != nil {
		return nil, offset, fmt.Errorf("seek log file: %w", err)
	}

	reader := bufio.NewReaderSize(file, 64*1024)
	var lines []string
	for {
		line, err := reader.ReadString('\n')
		if errors.Is(err, io.EOF) {
			// partial trailing line stays unread
			return lines, offset, nil
		}
		if err != nil {
			return lines, offset, fmt.Errorf("read log file: %w", err)
		}
		offset += int64(len(line))
		if len(line) > maxLine {
			line = line[:maxLine]
		}
		lines = append(lines, strings.TrimRight(line, "\r\n"))
	}
}

// Follow emits the last n lines of path, then every appended line, polling
// at interval until ctx is done.
func Follow(ctx context.Context, path string, n int, interval time.Duration, emit func(string)) error {
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	lines, offset, err := Last(path, n)
	if err != nil {
		return err
	}
	for _, line := range lines {
		emit(line)
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
		lines, offset, err = Since(path, offset)
		if err != nil {
			return err
		}
		for _, line := range lines {
			emit(line)
		}
	}
}
