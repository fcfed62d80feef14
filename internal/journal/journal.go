// Package journal appends one JSON line per handled bridge message to
// date-organized, size-rotated files.
package journal

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"gopkg.in/natefinch/lumberjack.v2"

	"github.com/dgnsrekt/booktabs/internal/tabs"
)

// ErrBufferFull is returned when the write queue is saturated. The entry is
// dropped.
var ErrBufferFull = errors.New("journal buffer full")

// ErrClosed is returned by Record after Close.
var ErrClosed = errors.New("journal closed")

// Entry is one handled message.
type Entry struct {
	Time       time.Time   `json:"time"`
	RequestID  string      `json:"request_id,omitempty"`
	Action     string      `json:"action"`
	Book       string      `json:"book,omitempty"`
	Anchor     int         `json:"anchor"`
	LinkTarget string      `json:"link_target,omitempty"`
	Result     tabs.Result `json:"result"`
	DurationMS int64       `json:"duration_ms"`
}

// Journal writes entries asynchronously. A nil *Journal discards entries.
type Journal struct {
	baseDir   string
	maxSizeMB int
	fileBase  string

	writeCh chan Entry
	done    chan struct{}
	wg      sync.WaitGroup

	mu          sync.Mutex
	currentDate string
	logger      *lumberjack.Logger
	now         func() time.Time
}

// New starts a journal under baseDir. Files land in
// <baseDir>/<UTC date>/messages/<start unix>.jsonl.
func New(baseDir string, bufferSize, maxSizeMB int) *Journal {
	if bufferSize <= 0 {
		bufferSize = 256
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	j := &Journal{
		baseDir:   baseDir,
		maxSizeMB: maxSizeMB,
		fileBase:  fmt.Sprintf("%d", time.Now().Unix()),
		writeCh:   make(chan Entry, bufferSize),
		done:      make(chan struct{}),
		now:       time.Now,
	}

	j.wg.Add(1)
	go j.writeLoop()
	return j
}

// Record queues an entry without blocking.
func (j *Journal) Record(e Entry) error {
	if j == nil {
		return nil
	}
	if e.Time.IsZero() {
		e.Time = j.now().UTC()
	}
	select {
	case <-j.done:
		return ErrClosed
	default:
	}
	select {
	case j.writeCh <- e:
		return nil
	default:
		slog.Warn("journal buffer full, dropping entry", "action", e.Action)
		return ErrBufferFull
	}
}

// Close flushes queued entries and closes the current file.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	close(j.done)
	j.wg.Wait()

	timeout := time.After(5 * time.Second)
drain:
	for {
		select {
		case e := <-j.writeCh:
			j.write(e)
		case <-timeout:
			slog.Warn("journal close timeout, some entries may be lost")
			break drain
		default:
			break drain
		}
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.logger != nil {
		return j.logger.Close()
	}
	return nil
}

func (j *Journal) writeLoop() {
	defer j.wg.Done()
	for {
		select {
		case e := <-j.writeCh:
			j.write(e)
		case <-j.done:
			return
		}
	}
}

func (j *Journal) write(e Entry) {
	data, err := json.Marshal(e)
	if err != nil {
		slog.Error("journal marshal failed", "error", err)
		return
	}

	j.mu.Lock()
	defer j.mu.Unlock()

	date := e.Time.UTC().Format("2006-01-02")
	if date != j.currentDate || j.logger == nil {
		if err := j.rotateForDate(date); err != nil {
			slog.Error("journal rotate failed", "error", err, "date", date)
			return
		}
	}

	if _, err := j.logger.Write(append(data, '\n')); err != nil {
		slog.Error("journal write failed", "error", err)
	}
}

func (j *Journal) rotateForDate(date string) error {
	if j.logger != nil {
		_ = j.logger.Close()
		j.logger = nil
	}

	dir := filepath.Join(j.baseDir, date, "messages")
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	filename := filepath.Join(dir, j.fileBase+".jsonl")

	j.logger = &lumberjack.Logger{
		Filename:   filename,
		MaxSize:    j.maxSizeMB,
		MaxBackups: 30,
		MaxAge:     30,
		LocalTime:  false,
	}
	j.currentDate = date
	slog.Info("journal file opened", "file", filename)
	return nil
}
