// Package wal keeps records the broker did not confirm in append-only
// segment files on local disk until they can be republished.
package wal

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/tenantlog/internal/adapter/codec"
	"github.com/V4T54L/tenantlog/internal/domain"
)

const (
	segmentPrefix = "segment-"
	segmentSuffix = ".log"
	filePerm      = 0644
)

// ErrSpoolFull is returned when a write would exceed the configured disk budget.
var ErrSpoolFull = errors.New("spool max total size exceeded")

// Spool implements domain.SpoolRepository as a segmented write-ahead log.
//
// Replay seals the active segment first, so records written while a replay
// is in flight land in a new segment, and Truncate only removes the
// segments the last successful replay read.
type Spool struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentPath    string
	currentSize    int64
	totalSize      int64
	replayed       []string
}

// NewSpool opens (or creates) the spool in dir.
func NewSpool(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*Spool, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create spool directory %s: %w", dir, err)
	}

	s := &Spool{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "spool"),
	}

	total, err := s.calculateTotalSize()
	if err != nil {
		return nil, fmt.Errorf("failed to size spool directory: %w", err)
	}
	s.totalSize = total

	if err := s.openLatestSegment(); err != nil {
		return nil, err
	}
	return s, nil
}

// Write appends rec to the active segment and syncs it to disk.
func (s *Spool) Write(ctx context.Context, rec domain.LogRecord) error {
	data, err := codec.EncodeRecord(rec)
	if err != nil {
		return err
	}
	data = append(data, '\n')

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.totalSize+int64(len(data)) > s.maxTotalSize {
		return fmt.Errorf("%w (%d + %d > %d)", ErrSpoolFull, s.totalSize, len(data), s.maxTotalSize)
	}

	if s.currentSegment == nil {
		if err := s.rotate(); err != nil {
			return err
		}
	}

	n, err := s.currentSegment.Write(data)
	s.currentSize += int64(n)
	s.totalSize += int64(n)
	if err != nil {
		return fmt.Errorf("failed to write to spool segment: %w", err)
	}
	if err := s.currentSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync spool segment: %w", err)
	}

	if s.currentSize >= s.maxSegmentSize {
		if err := s.rotate(); err != nil {
			s.logger.Error("failed to rotate spool segment", "error", err)
		}
	}
	return nil
}

// Replay calls handler for every spooled record, oldest first, and stops at
// the first handler error. Undecodable lines are skipped.
func (s *Spool) Replay(ctx context.Context, handler func(rec domain.LogRecord) error) error {
	segments, err := s.seal()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return nil
	}
	s.logger.Info("starting spool replay", "segment_count", len(segments))

	for _, path := range segments {
		if err := s.replaySegment(ctx, path, handler); err != nil {
			return err
		}
	}

	s.mu.Lock()
	s.replayed = segments
	s.mu.Unlock()

	s.logger.Info("spool replay completed", "segment_count", len(segments))
	return nil
}

func (s *Spool) replaySegment(ctx context.Context, path string, handler func(rec domain.LogRecord) error) error {
	file, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", path, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return err
		}
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		rec, err := codec.DecodeRecord(line)
		if err != nil {
			s.logger.Warn("skipping undecodable spool line", "segment", filepath.Base(path), "error", err)
			continue
		}
		if err := handler(rec); err != nil {
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", path, err)
	}
	return nil
}

// Truncate deletes the segments read by the last completed Replay.
func (s *Spool) Truncate(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.replayed) == 0 {
		return nil
	}

	var errs []error
	for _, path := range s.replayed {
		info, statErr := os.Stat(path)
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, err)
			continue
		}
		if statErr == nil {
			s.totalSize -= info.Size()
		}
	}
	s.logger.Info("spool truncated", "segment_count", len(s.replayed))
	s.replayed = nil
	if s.totalSize < 0 {
		s.totalSize = 0
	}
	return errors.Join(errs...)
}

// seal closes the active segment and returns every sealed segment in order.
func (s *Spool) seal() ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	segments, err := s.getSortedSegments()
	if err != nil {
		return nil, err
	}
	if s.currentSegment != nil {
		if s.currentSize == 0 {
			// Nothing to seal; leave the empty active segment out of the replay.
			segments = without(segments, s.currentPath)
			return segments, nil
		}
		if err := s.rotate(); err != nil {
			return nil, err
		}
	}
	return segments, nil
}

func (s *Spool) rotate() error {
	if s.currentSegment != nil {
		if err := s.currentSegment.Sync(); err != nil {
			s.logger.Error("failed to sync spool segment before rotating", "error", err)
		}
		if err := s.currentSegment.Close(); err != nil {
			s.logger.Error("failed to close spool segment before rotating", "error", err)
		}
		s.currentSegment = nil
	}

	path := filepath.Join(s.dir, fmt.Sprintf("%s%020d%s", segmentPrefix, time.Now().UnixNano(), segmentSuffix))
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create spool segment %s: %w", path, err)
	}

	s.currentSegment = f
	s.currentPath = path
	s.currentSize = 0
	s.logger.Debug("rotated to new spool segment", "path", path)
	return nil
}

func (s *Spool) openLatestSegment() error {
	segments, err := s.getSortedSegments()
	if err != nil {
		return err
	}
	if len(segments) == 0 {
		return s.rotate()
	}

	latest := segments[len(segments)-1]
	stat, err := os.Stat(latest)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latest, err)
	}
	if stat.Size() >= s.maxSegmentSize {
		return s.rotate()
	}

	f, err := os.OpenFile(latest, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latest, err)
	}
	s.currentSegment = f
	s.currentPath = latest
	s.currentSize = stat.Size()
	s.logger.Info("opened existing spool segment", "path", latest, "size", s.currentSize)
	return nil
}

func (s *Spool) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read spool directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if isSegment(entry) {
			segments = append(segments, filepath.Join(s.dir, entry.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (s *Spool) calculateTotalSize() (int64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return 0, err
	}
	var total int64
	for _, entry := range entries {
		if !isSegment(entry) {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			return 0, err
		}
		total += info.Size()
	}
	return total, nil
}

func isSegment(entry os.DirEntry) bool {
	return !entry.IsDir() && strings.HasPrefix(entry.Name(), segmentPrefix) && strings.HasSuffix(entry.Name(), segmentSuffix)
}

func without(paths []string, drop string) []string {
	out := paths[:0]
	for _, p := range paths {
		if p != drop {
			out = append(out, p)
		}
	}
	return out
}

// Close closes the active segment.
func (s *Spool) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.currentSegment != nil {
		err := s.currentSegment.Close()
		s.currentSegment = nil
		return err
	}
	return nil
}
