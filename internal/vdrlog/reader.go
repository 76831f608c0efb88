package vdrlog

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/banshee-data/vdrplay/internal/monitoring"
)

// Column names the Data Monitor writes in VDR mode. The reader locates them
// by header so extra columns and arbitrary column order are tolerated.
const (
	colReceivedAt = "received_at"
	colProtocol   = "protocol"
	colRawData    = "raw_data"
)

// maxWarnings bounds the retained warning list; past this only the counter
// is incremented.
const maxWarnings = 100

// Options configures a FileSource.
type Options struct {
	// Filter keeps only rows whose protocol column contains this protocol
	// name (case-insensitive substring, matching the original Data Monitor
	// convention). Empty keeps every row. Logs without a protocol column
	// keep every row regardless.
	Filter Protocol
}

// FileSource reads a CSV VDR log from disk. It is lazy: rows are parsed one
// at a time by Next. Open validates the header and prescans the file so a
// structurally unusable log is rejected before any network activity starts.
type FileSource struct {
	path string
	opts Options

	f   *os.File
	csv *csv.Reader

	fields map[string]int

	seq          int
	total        int
	warnings     []string
	warningCount int
}

// Open opens a VDR log file and validates its structure. It returns
// ErrMalformedLog if the header lacks the required columns, or if the file
// contains data rows but none of them parse. A header-only log is valid and
// trivially complete.
func Open(path string, opts Options) (*FileSource, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open log %s: %w", path, err)
	}

	s := &FileSource{path: path, opts: opts, f: f}
	if err := s.readHeader(); err != nil {
		f.Close()
		return nil, err
	}

	// Prescan: count parseable rows so progress can be reported as i/total,
	// and so a log where every row is garbage fails before the transport
	// opens. Warnings from the prescan are discarded; Next records them
	// again on the real pass.
	rows, valid := 0, 0
	for {
		row, err := s.csv.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			rows++
			continue
		}
		rows++
		if _, ok := s.parseRow(row, false); ok {
			valid++
		}
	}
	if rows > 0 && valid == 0 {
		f.Close()
		return nil, fmt.Errorf("%s: %d rows, none parseable: %w", path, rows, ErrMalformedLog)
	}
	s.total = valid

	if err := s.Rewind(); err != nil {
		f.Close()
		return nil, err
	}
	return s, nil
}

// readHeader positions the reader past the header row and maps column names
// to indices.
func (s *FileSource) readHeader() error {
	if _, err := s.f.Seek(0, io.SeekStart); err != nil {
		return fmt.Errorf("failed to rewind log: %w", err)
	}

	r := csv.NewReader(s.f)
	r.Comment = '#'
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	header, err := r.Read()
	if err != nil {
		if err == io.EOF {
			return fmt.Errorf("%s: empty file: %w", s.path, ErrMalformedLog)
		}
		return fmt.Errorf("%s: unreadable header: %w", s.path, ErrMalformedLog)
	}

	fields := make(map[string]int, len(header))
	for i, name := range header {
		fields[strings.TrimSpace(strings.ToLower(name))] = i
	}
	if _, ok := fields[colReceivedAt]; !ok {
		return fmt.Errorf("%s: missing %q column: %w", s.path, colReceivedAt, ErrMalformedLog)
	}
	if _, ok := fields[colRawData]; !ok {
		return fmt.Errorf("%s: missing %q column: %w", s.path, colRawData, ErrMalformedLog)
	}

	s.csv = r
	s.fields = fields
	return nil
}

// Next returns the next record in source order, skipping rows that are
// malformed or filtered out. It returns io.EOF at end of log.
func (s *FileSource) Next() (*LogRecord, error) {
	for {
		row, err := s.csv.Read()
		if err == io.EOF {
			return nil, io.EOF
		}
		if err != nil {
			s.warn("bad row: %v", err)
			continue
		}

		rec, ok := s.parseRow(row, true)
		if !ok {
			continue
		}
		if rec == nil {
			// Filtered out, not malformed.
			continue
		}

		rec.Seq = s.seq
		s.seq++
		return rec, nil
	}
}

// parseRow converts one CSV row into a LogRecord. It returns (nil, true)
// for rows that are valid but excluded by the protocol filter, and
// (nil, false) for malformed rows. When warn is false parse problems are
// silent (prescan).
func (s *FileSource) parseRow(row []string, warn bool) (*LogRecord, bool) {
	tsIdx := s.fields[colReceivedAt]
	rawIdx := s.fields[colRawData]
	if tsIdx >= len(row) || rawIdx >= len(row) {
		if warn {
			s.warn("short row: %d fields", len(row))
		}
		return nil, false
	}

	// received_at is epoch milliseconds, fractional values allowed.
	ms, err := strconv.ParseFloat(strings.TrimSpace(row[tsIdx]), 64)
	if err != nil {
		if warn {
			s.warn("bad timestamp %q", row[tsIdx])
		}
		return nil, false
	}

	proto := s.opts.Filter
	if idx, ok := s.fields[colProtocol]; ok && idx < len(row) {
		tag := strings.ToLower(strings.TrimSpace(row[idx]))
		if s.opts.Filter != "" && !strings.Contains(tag, string(s.opts.Filter)) {
			return nil, true
		}
		if p, ok := ParseProtocol(tag); ok {
			proto = p
		}
	}

	return &LogRecord{
		Timestamp: time.Unix(0, int64(ms*float64(time.Millisecond))),
		Payload:   []byte(row[rawIdx]),
		Protocol:  proto,
	}, true
}

// Rewind restarts the sequence from the first record. Sequence numbers
// restart from zero.
func (s *FileSource) Rewind() error {
	if err := s.readHeader(); err != nil {
		return err
	}
	s.seq = 0
	return nil
}

// Total returns the number of parseable records found by the prescan,
// before protocol filtering.
func (s *FileSource) Total() int {
	return s.total
}

// Warnings returns the messages recorded for skipped rows, capped at
// maxWarnings entries.
func (s *FileSource) Warnings() []string {
	out := make([]string, len(s.warnings))
	copy(out, s.warnings)
	return out
}

// WarningCount returns the total number of skipped rows, including those
// past the retained-warning cap.
func (s *FileSource) WarningCount() int {
	return s.warningCount
}

// Close releases the underlying file.
func (s *FileSource) Close() error {
	return s.f.Close()
}

func (s *FileSource) warn(format string, v ...interface{}) {
	s.warningCount++
	if len(s.warnings) < maxWarnings {
		s.warnings = append(s.warnings, fmt.Sprintf(format, v...))
	}
	monitoring.Logf("vdrlog: "+format, v...)
}
