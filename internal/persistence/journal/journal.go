package journal

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"time"

	"github.com/klauspost/compress/zstd"

	"aisociety.ai/internal/economy/market"
	"aisociety.ai/internal/protocol"
)

// Writer appends JSONL entries to hourly files under baseDir. With
// compress set, files are zstd streams (.jsonl.zst); otherwise plain
// .jsonl.
type Writer struct {
	baseDir  string
	prefix   string
	compress bool

	mu      sync.Mutex
	curHour string
	f       *os.File
	enc     *zstd.Encoder
	w       *bufio.Writer
}

func NewWriter(baseDir, prefix string, compress bool) *Writer {
	return &Writer{
		baseDir:  baseDir,
		prefix:   prefix,
		compress: compress,
	}
}

func (w *Writer) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.closeLocked()
}

func (w *Writer) Write(v any) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	hour := time.Now().UTC().Format("2006-01-02-15")
	if hour != w.curHour {
		if err := w.rotateLocked(hour); err != nil {
			return err
		}
	}

	b, err := json.Marshal(v)
	if err != nil {
		return err
	}
	if _, err := w.w.Write(b); err != nil {
		return err
	}
	if err := w.w.WriteByte('\n'); err != nil {
		return err
	}
	return w.w.Flush()
}

func (w *Writer) rotateLocked(hour string) error {
	if err := w.closeLocked(); err != nil {
		return err
	}
	dir := filepath.Dir(w.pathForHour(hour))
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(w.pathForHour(hour), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	w.f = f
	if w.compress {
		enc, err := zstd.NewWriter(f, zstd.WithEncoderLevel(zstd.SpeedFastest))
		if err != nil {
			_ = f.Close()
			w.f = nil
			return err
		}
		w.enc = enc
		w.w = bufio.NewWriterSize(enc, 128*1024)
	} else {
		w.w = bufio.NewWriterSize(f, 128*1024)
	}
	w.curHour = hour
	return nil
}

func (w *Writer) closeLocked() error {
	var err1 error
	if w.w != nil {
		_ = w.w.Flush()
	}
	if w.enc != nil {
		err1 = w.enc.Close()
		w.enc = nil
	}
	if w.f != nil {
		_ = w.f.Close()
		w.f = nil
	}
	w.w = nil
	w.curHour = ""
	return err1
}

func (w *Writer) pathForHour(hour string) string {
	name := fmt.Sprintf("%s-%s.jsonl", w.prefix, hour)
	if w.compress {
		name += ".zst"
	}
	return filepath.Join(w.baseDir, name)
}

// MarketJournal records every marketplace event as a wire-format JSONL
// entry. It runs inside the marketplace lock, so write failures are
// counted rather than propagated.
type MarketJournal struct {
	w         *Writer
	writeErrs atomic.Uint64
}

func NewMarketJournal(baseDir string, compress bool) *MarketJournal {
	return &MarketJournal{w: NewWriter(filepath.Join(baseDir, "market"), "market", compress)}
}

func (j *MarketJournal) OnMarketEvent(evt market.Event) {
	if err := j.w.Write(protocol.FromMarketEvent(evt)); err != nil {
		j.writeErrs.Add(1)
	}
}

// WriteErrors reports how many entries failed to persist.
func (j *MarketJournal) WriteErrors() uint64 { return j.writeErrs.Load() }

func (j *MarketJournal) Close() error { return j.w.Close() }
