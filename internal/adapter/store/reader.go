package store

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/user/agent-telemetry/internal/domain"
)

const (
	defaultPageSize = 100
	maxPageSize     = 1000
)

type segmentInfo struct {
	name  string
	date  string
	index int
}

// listSegments returns the prefix's segment files ordered by (date,
// rotation index), which is insertion order.
func listSegments(dir, prefix string) ([]segmentInfo, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read data directory %s: %w", dir, err)
	}

	var segments []segmentInfo
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if seg, ok := parseSegmentName(entry.Name(), prefix); ok {
			segments = append(segments, seg)
		}
	}

	sort.Slice(segments, func(i, j int) bool {
		if segments[i].date != segments[j].date {
			return segments[i].date < segments[j].date
		}
		return segments[i].index < segments[j].index
	})
	return segments, nil
}

// parseSegmentName matches {prefix}-{YYYY-MM-DD}-{index}{ext}.
func parseSegmentName(name, prefix string) (segmentInfo, bool) {
	if !strings.HasPrefix(name, prefix+"-") || !strings.HasSuffix(name, fileExt) {
		return segmentInfo{}, false
	}

	rest := strings.TrimSuffix(strings.TrimPrefix(name, prefix+"-"), fileExt)
	if len(rest) < len(dateLayout)+2 || rest[len(dateLayout)] != '-' {
		return segmentInfo{}, false
	}

	date := rest[:len(dateLayout)]
	if _, err := time.Parse(dateLayout, date); err != nil {
		return segmentInfo{}, false
	}

	index, err := strconv.Atoi(rest[len(dateLayout)+1:])
	if err != nil || index < 0 {
		return segmentInfo{}, false
	}

	return segmentInfo{name: name, date: date, index: index}, true
}

// readPage scans the prefix's segments from the cursor position, applies
// the filter and returns one page plus the cursor to resume from. An
// empty next cursor signals end of available data. Reads come from disk
// only, never from the in-memory queue, so repeated calls with the same
// cursor and no intervening writes are identical.
func readPage(ctx context.Context, dir, prefix string, f domain.RecordFilter, logger *slog.Logger) ([]domain.Record, string, error) {
	segments, err := listSegments(dir, prefix)
	if err != nil {
		return nil, "", err
	}

	limit := f.Limit
	if limit <= 0 {
		limit = defaultPageSize
	}
	if limit > maxPageSize {
		limit = maxPageSize
	}

	start := 0
	var offset int64
	if f.Cursor != "" {
		c, err := decodeCursor(f.Cursor)
		if err != nil {
			return nil, "", err
		}
		start = -1
		for i, seg := range segments {
			if seg.name == c.File {
				start = i
				break
			}
		}
		if start < 0 {
			// The referenced file has been pruned; the cursor cannot
			// resume deterministically.
			return nil, "", domain.ErrInvalidCursor
		}
		offset = c.Offset
	}

	var records []domain.Record
	for si := start; si < len(segments); si++ {
		if err := ctx.Err(); err != nil {
			return nil, "", err
		}

		seg := segments[si]
		page, next, err := scanSegment(filepath.Join(dir, seg.name), seg.name, offset, limit-len(records), f, logger)
		if err != nil {
			return nil, "", err
		}
		records = append(records, page...)
		if next != "" {
			return records, next, nil
		}
		offset = 0
	}

	return records, "", nil
}

// scanSegment reads complete lines from the given byte offset. A trailing
// line without a newline may be a partial write from a crash and is
// skipped, as are lines that fail to parse. When the remaining page fills
// up it returns the cursor for the next unread line.
func scanSegment(path, name string, offset int64, remaining int, f domain.RecordFilter, logger *slog.Logger) ([]domain.Record, string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("failed to open segment %s: %w", path, err)
	}
	defer file.Close()

	if offset > 0 {
		if _, err := file.Seek(offset, io.SeekStart); err != nil {
			return nil, "", fmt.Errorf("failed to seek segment %s: %w", path, err)
		}
	}

	reader := bufio.NewReader(file)
	pos := offset

	var records []domain.Record
	for {
		line, err := reader.ReadBytes('\n')
		if err == io.EOF {
			return records, "", nil
		}
		if err != nil {
			return nil, "", fmt.Errorf("failed to scan segment %s: %w", path, err)
		}
		pos += int64(len(line))

		var rec domain.Record
		if err := json.Unmarshal(line, &rec); err != nil {
			logger.Warn("skipping unparsable line", "file", name, "error", err)
			continue
		}
		if !matchFilter(rec, f) {
			continue
		}

		records = append(records, rec)
		if len(records) >= remaining {
			return records, encodeCursor(cursor{File: name, Offset: pos}), nil
		}
	}
}

func matchFilter(rec domain.Record, f domain.RecordFilter) bool {
	if !f.Since.IsZero() && rec.Timestamp.Before(f.Since) {
		return false
	}
	if !f.Until.IsZero() && rec.Timestamp.After(f.Until) {
		return false
	}
	if f.Type != "" && rec.Type != f.Type {
		return false
	}
	if f.TaskID != "" && rec.TaskID != f.TaskID {
		return false
	}
	if f.Severity != "" && rec.Severity != f.Severity {
		return false
	}
	return true
}
