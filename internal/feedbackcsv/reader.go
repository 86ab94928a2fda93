// Package feedbackcsv reads feedback items from CSV exports for local clustering runs.
//
// The first row is a header. Recognized columns (case-insensitive, any order):
//
//	text               required; rows with blank text are skipped
//	source             source channel, default "upload"
//	account            customer account name
//	created_at         RFC 3339 or "2006-01-02 15:04:05"; default now
//	sentiment_score    float in [-1, 1]
//	source_confidence  float in [0, 1], default 1
//
// Other columns are kept as string metadata.
package feedbackcsv

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/formbricks/themes/internal/models"
)

// ErrMissingTextColumn is returned when the header has no text column.
var ErrMissingTextColumn = errors.New("csv header has no text column")

const timestampLayout = "2006-01-02 15:04:05"

// RowError describes a row that could not be converted.
type RowError struct {
	Row int
	Err error
}

func (e RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

// Stats summarizes a read.
type Stats struct {
	TotalRows    int
	SkippedEmpty int
	Failed       []RowError
}

// Read converts every data row of r. Rows that fail to parse are reported in Stats.Failed and
// skipped. now stamps rows without created_at.
func Read(r io.Reader, now time.Time) ([]models.FeedbackItem, Stats, error) {
	var stats Stats

	reader := csv.NewReader(r)
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	header, err := reader.Read()
	if err != nil {
		return nil, stats, fmt.Errorf("read header: %w", err)
	}

	cols := make(map[string]int, len(header))
	for i, name := range header {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}

	if _, ok := cols["text"]; !ok {
		return nil, stats, ErrMissingTextColumn
	}

	items := []models.FeedbackItem{}

	for rowNum := 2; ; rowNum++ {
		row, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}

		if err != nil {
			stats.Failed = append(stats.Failed, RowError{Row: rowNum, Err: err})

			continue
		}

		stats.TotalRows++

		item, ok, err := convertRow(header, cols, row, now)
		if err != nil {
			stats.Failed = append(stats.Failed, RowError{Row: rowNum, Err: err})

			continue
		}

		if !ok {
			stats.SkippedEmpty++

			continue
		}

		items = append(items, item)
	}

	return items, stats, nil
}

var knownColumns = map[string]struct{}{
	"text": {}, "source": {}, "account": {}, "created_at": {}, "sentiment_score": {}, "source_confidence": {},
}

func convertRow(header []string, cols map[string]int, row []string, now time.Time) (models.FeedbackItem, bool, error) {
	get := func(name string) string {
		i, ok := cols[name]
		if !ok || i >= len(row) {
			return ""
		}

		return strings.TrimSpace(row[i])
	}

	text := get("text")
	if text == "" {
		return models.FeedbackItem{}, false, nil
	}

	item := models.FeedbackItem{
		ID:               uuid.Must(uuid.NewV7()),
		Source:           models.SourceUpload,
		Text:             text,
		CreatedAt:        now,
		SourceConfidence: 1,
	}

	if s := get("source"); s != "" {
		source, err := models.ParseSourceChannel(s)
		if err != nil {
			return models.FeedbackItem{}, false, err
		}

		item.Source = source
	}

	if account := get("account"); account != "" {
		item.Account = &account
	}

	if s := get("created_at"); s != "" {
		t, err := parseTimestamp(s)
		if err != nil {
			return models.FeedbackItem{}, false, err
		}

		item.CreatedAt = t
	}

	if s := get("sentiment_score"); s != "" {
		v, err := parseBounded(s, -1, 1)
		if err != nil {
			return models.FeedbackItem{}, false, fmt.Errorf("sentiment_score: %w", err)
		}

		item.SentimentScore = &v
	}

	if s := get("source_confidence"); s != "" {
		v, err := parseBounded(s, 0, 1)
		if err != nil {
			return models.FeedbackItem{}, false, fmt.Errorf("source_confidence: %w", err)
		}

		item.SourceConfidence = v
	}

	extra := map[string]string{}

	for i, name := range header {
		key := strings.ToLower(strings.TrimSpace(name))
		if _, known := knownColumns[key]; known || key == "" || i >= len(row) {
			continue
		}

		if v := strings.TrimSpace(row[i]); v != "" {
			extra[key] = v
		}
	}

	if len(extra) > 0 {
		raw, err := json.Marshal(extra)
		if err != nil {
			return models.FeedbackItem{}, false, fmt.Errorf("encode metadata: %w", err)
		}

		item.Metadata = raw
	}

	return item, true, nil
}

func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}

	t, err := time.Parse(timestampLayout, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid created_at %q", s)
	}

	return t.UTC(), nil
}

func parseBounded(s string, lo, hi float64) (float64, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid number %q", s)
	}

	if v < lo || v > hi {
		return 0, fmt.Errorf("%v outside [%v, %v]", v, lo, hi)
	}

	return v, nil
}
