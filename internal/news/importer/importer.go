package importer

import (
	"bytes"
	_ "embed"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/zappabad/bargetrader/internal/news"
)

//go:embed seed.csv
var seedCSV []byte

var ErrEmptyContent = errors.New("message content is empty")

// Record is one row of a bulk import.
type Record struct {
	Content     string
	ImpactType  string
	ImpactValue string
}

// Message validates the record and converts it.
func (r Record) Message() (news.Message, error) {
	content := strings.TrimSpace(r.Content)
	if content == "" {
		return news.Message{}, ErrEmptyContent
	}
	impact, err := news.ParseImpactType(r.ImpactType)
	if err != nil {
		return news.Message{}, err
	}
	value, err := decimal.NewFromString(strings.TrimSpace(r.ImpactValue))
	if err != nil {
		return news.Message{}, fmt.Errorf("invalid impact value %q: %w", r.ImpactValue, err)
	}
	if value.IsNegative() {
		return news.Message{}, fmt.Errorf("impact value %s is negative", value)
	}
	return news.Message{Content: content, Impact: impact, Value: value}, nil
}

// ReadCSV parses content,impact_type,impact_value rows. A header row is
// detected and skipped. Errors carry the 1-based line number.
func ReadCSV(r io.Reader) ([]news.Message, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = 3
	cr.TrimLeadingSpace = true

	var out []news.Message
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		line++
		if err != nil {
			return nil, fmt.Errorf("read csv: %w", err)
		}
		if line == 1 && isHeader(row) {
			continue
		}
		msg, err := Record{Content: row[0], ImpactType: row[1], ImpactValue: row[2]}.Message()
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		out = append(out, msg)
	}
	return out, nil
}

func isHeader(row []string) bool {
	return strings.EqualFold(strings.TrimSpace(row[0]), "content") &&
		strings.EqualFold(strings.TrimSpace(row[1]), "impact_type")
}

// Seed returns the built-in message pool.
func Seed() []news.Message {
	msgs, err := ReadCSV(bytes.NewReader(seedCSV))
	if err != nil {
		panic(fmt.Sprintf("embedded seed is invalid: %v", err))
	}
	return msgs
}
