// Package store keeps the collected history in a single CSV table. Each round appends
// its batch, then normalizes the file so that every (symbol, hour_bucket) pair appears
// once, keeping the most recently appended row. A copy of the table is taken before
// every round so a bad pass can always be rolled back by hand.
package store

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"turnover.magictradebot.com/models"
)

const (
	colHour   = "hour_bucket"
	colSymbol = "symbol"
	colSlug   = "asset_slug"
)

type Table struct {
	Path     string
	Metrics  []models.Metric
	Location *time.Location
	log      logrus.FieldLogger
}

func NewTable(path string, metrics []models.Metric, log logrus.FieldLogger) *Table {
	return &Table{Path: path, Metrics: metrics, Location: time.Local, log: log}
}

// Header is the column set used when the table is created.
func (t *Table) Header() []string {
	h := []string{colHour, colSymbol, colSlug}
	for _, m := range t.Metrics {
		h = append(h, string(m))
	}
	return h
}

// AppendAndNormalize runs one round's write: backup, append, normalize. It returns the
// backup path, empty when there was nothing to back up.
func (t *Table) AppendAndNormalize(batch []models.Record) (string, error) {
	backup, err := t.Backup()
	if err != nil {
		return "", fmt.Errorf("backup table: %w", err)
	}
	if err := t.Append(batch); err != nil {
		return backup, fmt.Errorf("append batch: %w", err)
	}
	n, err := t.Normalize()
	if err != nil {
		return backup, fmt.Errorf("normalize table: %w", err)
	}
	t.log.WithFields(logrus.Fields{
		"table":    t.Path,
		"appended": len(batch),
		"rows":     n,
	}).Info("🗂️ Table normalized")
	return backup, nil
}

// BackupPath is where a snapshot whose last row is stamped lastHour goes.
func (t *Table) BackupPath(lastHour string) string {
	safe := strings.NewReplacer(" ", "_", ":", "-").Replace(lastHour)
	return t.Path + "." + safe
}

// Backup copies the table next to itself, suffixed with its last row's hour bucket.
// A missing or empty table is not an error.
func (t *Table) Backup() (string, error) {
	header, rows, err := t.readRaw()
	if errors.Is(err, os.ErrNotExist) {
		t.log.WithField("table", t.Path).Info("📭 No table yet, nothing to back up")
		return "", nil
	}
	if err != nil {
		return "", err
	}
	if len(rows) == 0 {
		t.log.WithField("table", t.Path).Info("📭 Table has no rows, nothing to back up")
		return "", nil
	}

	hi := indexOf(header, colHour)
	if hi < 0 {
		return "", fmt.Errorf("table %s has no %s column", t.Path, colHour)
	}
	dst := t.BackupPath(rows[len(rows)-1][hi])
	if err := copyFile(t.Path, dst); err != nil {
		return "", err
	}
	t.log.WithField("backup", dst).Info("💾 Table backed up")
	return dst, nil
}

// Append writes batch at the end of the table, creating it with a header if needed.
// Rows follow the existing header's column order.
func (t *Table) Append(batch []models.Record) error {
	if err := os.MkdirAll(filepath.Dir(t.Path), 0o755); err != nil {
		return err
	}

	header, err := t.readHeader()
	fresh := errors.Is(err, os.ErrNotExist) || (err == nil && header == nil)
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	if fresh {
		header = t.Header()
	}

	f, err := os.OpenFile(t.Path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	defer f.Close()

	if !fresh {
		if err := ensureTrailingNewline(t.Path, f); err != nil {
			return err
		}
	}

	w := csv.NewWriter(f)
	if fresh {
		if err := w.Write(header); err != nil {
			return err
		}
	}
	for _, r := range batch {
		if err := w.Write(t.toRow(header, r)); err != nil {
			return err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return err
	}
	return f.Sync()
}

type rawRow struct {
	fields []string
	hour   time.Time
	parsed bool
}

// Normalize drops duplicate (symbol, hour_bucket) rows keeping the last one, orders the
// table by hour and rewrites it in place. It returns the number of rows kept.
func (t *Table) Normalize() (int, error) {
	header, rows, err := t.readRaw()
	if err != nil {
		return 0, err
	}
	hi, si := indexOf(header, colHour), indexOf(header, colSymbol)
	if hi < 0 || si < 0 {
		return 0, fmt.Errorf("table %s lacks %s or %s column", t.Path, colHour, colSymbol)
	}

	items := make([]rawRow, len(rows))
	for i, fields := range rows {
		tm, err := time.ParseInLocation(models.HourBucketLayout, fields[hi], t.location())
		items[i] = rawRow{fields: fields, hour: tm, parsed: err == nil}
	}
	hourLess := func(a, b rawRow) bool {
		if a.parsed && b.parsed {
			return a.hour.Before(b.hour)
		}
		return a.fields[hi] < b.fields[hi]
	}
	sameHour := func(a, b rawRow) bool {
		if a.parsed && b.parsed {
			return a.hour.Equal(b.hour)
		}
		return a.fields[hi] == b.fields[hi]
	}

	// stable sorts keep append order among equal keys, so "last" is the latest append
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].fields[si] != items[j].fields[si] {
			return items[i].fields[si] < items[j].fields[si]
		}
		return hourLess(items[i], items[j])
	})

	kept := items[:0]
	for i, it := range items {
		if i+1 < len(items) {
			next := items[i+1]
			if next.fields[si] == it.fields[si] && sameHour(next, it) {
				continue
			}
		}
		kept = append(kept, it)
	}

	sort.SliceStable(kept, func(i, j int) bool { return hourLess(kept[i], kept[j]) })

	out := make([][]string, 0, len(kept)+1)
	out = append(out, header)
	for _, it := range kept {
		out = append(out, it.fields)
	}
	if err := t.rewrite(out); err != nil {
		return 0, err
	}
	return len(kept), nil
}

// Load reads every row of the table as a record.
func (t *Table) Load() ([]models.Record, error) {
	header, rows, err := t.readRaw()
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	out := make([]models.Record, 0, len(rows))
	for i, fields := range rows {
		r, err := t.fromRow(header, fields)
		if err != nil {
			return nil, fmt.Errorf("row %d: %w", i+2, err)
		}
		out = append(out, r)
	}
	return out, nil
}

func (t *Table) location() *time.Location {
	if t.Location == nil {
		return time.Local
	}
	return t.Location
}

func (t *Table) toRow(header []string, r models.Record) []string {
	row := make([]string, len(header))
	for i, col := range header {
		switch col {
		case colHour:
			row[i] = r.HourBucket.Format(models.HourBucketLayout)
		case colSymbol:
			row[i] = r.Symbol
		case colSlug:
			row[i] = r.AssetSlug
		default:
			if m, ok := models.ParseMetric(col); ok {
				if v, ok := r.Value(m); ok {
					row[i] = strconv.FormatFloat(v, 'f', -1, 64)
				}
			}
		}
	}
	return row
}

func (t *Table) fromRow(header, fields []string) (models.Record, error) {
	var r models.Record
	for i, col := range header {
		val := fields[i]
		switch col {
		case colHour:
			tm, err := time.ParseInLocation(models.HourBucketLayout, val, t.location())
			if err != nil {
				return r, fmt.Errorf("bad %s %q: %w", colHour, val, err)
			}
			r.HourBucket = tm
		case colSymbol:
			r.Symbol = val
		case colSlug:
			r.AssetSlug = val
		default:
			m, ok := models.ParseMetric(col)
			if !ok || val == "" {
				continue
			}
			v, err := strconv.ParseFloat(val, 64)
			if err != nil {
				return r, fmt.Errorf("bad %s %q: %w", col, val, err)
			}
			r.SetValue(m, v)
		}
	}
	return r, nil
}

// readRaw returns the header and data rows, each padded or cut to the header width.
func (t *Table) readRaw() ([]string, [][]string, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	all, err := r.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read %s: %w", t.Path, err)
	}
	if len(all) == 0 {
		return t.Header(), nil, nil
	}
	header := all[0]
	rows := all[1:]
	for i, row := range rows {
		if len(row) != len(header) {
			fixed := make([]string, len(header))
			copy(fixed, row)
			rows[i] = fixed
		}
	}
	return header, rows, nil
}

func (t *Table) readHeader() ([]string, error) {
	f, err := os.Open(t.Path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	header, err := csv.NewReader(f).Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	return header, err
}

// rewrite replaces the table through a temp file and rename so a crash leaves either
// the old or the new file, never a half-written one.
func (t *Table) rewrite(rows [][]string) error {
	tmp, err := os.CreateTemp(filepath.Dir(t.Path), filepath.Base(t.Path)+".tmp-*")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())

	w := csv.NewWriter(tmp)
	if err := w.WriteAll(rows); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), t.Path)
}

func ensureTrailingNewline(path string, f *os.File) error {
	info, err := os.Stat(path)
	if err != nil || info.Size() == 0 {
		return err
	}
	rf, err := os.Open(path)
	if err != nil {
		return err
	}
	defer rf.Close()

	last := make([]byte, 1)
	if _, err := rf.ReadAt(last, info.Size()-1); err != nil {
		return err
	}
	if last[0] != '\n' {
		_, err = f.Write([]byte("\n"))
	}
	return err
}

func copyFile(src, dst string) error {
	in, err := os.Open(src)
	if err != nil {
		return err
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		out.Close()
		return err
	}
	if err := out.Sync(); err != nil {
		out.Close()
		return err
	}
	return out.Close()
}

func indexOf(xs []string, s string) int {
	for i, x := range xs {
		if x == s {
			return i
		}
	}
	return -1
}
