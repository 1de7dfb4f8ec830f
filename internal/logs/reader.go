package logs

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"golang.org/x/text/encoding/unicode"
	"golang.org/x/text/transform"
)

// NoLogsMessage is returned in place of log content when no log file matches.
const NoLogsMessage = "No log files found"

// Reader returns the tail of the newest log file in a directory.
type Reader struct {
	dir    string
	suffix string
	lines  int
}

func NewReader(dir, suffix string, lines int) *Reader {
	return &Reader{
		dir:    dir,
		suffix: suffix,
		lines:  lines,
	}
}

// Latest returns the path of the most recently modified matching file, or "" if there is none.
// A missing directory is treated as empty.
func (r *Reader) Latest() (string, error) {
	entries, err := os.ReadDir(r.dir)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return "", nil
		}
		return "", fmt.Errorf("failed to list log directory: %w", err)
	}

	var (
		latest     string
		latestTime time.Time
	)

	for _, entry := range entries {
		if !entry.Type().IsRegular() || !strings.HasSuffix(entry.Name(), r.suffix) {
			continue
		}

		info, err := entry.Info()
		if err != nil {
			// Removed between listing and stat
			continue
		}

		modTime := info.ModTime()
		if latest == "" || modTime.After(latestTime) || (modTime.Equal(latestTime) && entry.Name() > latest) {
			latest = entry.Name()
			latestTime = modTime
		}
	}

	if latest == "" {
		return "", nil
	}
	return filepath.Join(r.dir, latest), nil
}

// Tail returns the last lines of the newest log file, or NoLogsMessage when there is none.
func (r *Reader) Tail() (string, error) {
	path, err := r.Latest()
	if err != nil {
		return "", err
	}
	if path == "" {
		return NoLogsMessage, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("failed to open log file: %w", err)
	}
	defer f.Close()

	// MT5 writes UTF-16LE with a BOM, other tools plain UTF-8. Invalid bytes become U+FFFD.
	decoded := transform.NewReader(f, unicode.BOMOverride(unicode.UTF8.NewDecoder()))

	content, err := TailLines(decoded, r.lines)
	if err != nil {
		return "", fmt.Errorf("failed to read log file: %w", err)
	}
	return content, nil
}

// TailLines returns the last n lines from rd joined with their original terminators.
func TailLines(rd io.Reader, n int) (string, error) {
	if n <= 0 {
		return "", nil
	}

	ring := make([]string, n)
	count := 0

	br := bufio.NewReader(rd)
	for {
		line, err := br.ReadString('\n')
		if line != "" {
			ring[count%n] = line
			count++
		}
		if err == io.EOF {
			break
		}
		if err != nil {
			return "", err
		}
	}

	if count <= n {
		return strings.Join(ring[:count], ""), nil
	}

	start := count % n
	var sb strings.Builder
	for i := 0; i < n; i++ {
		sb.WriteString(ring[(start+i)%n])
	}
	return sb.String(), nil
}
