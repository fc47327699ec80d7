// Package portfolio reads delimited loan portfolios into LoanRecords.
package portfolio

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"math"
	"strings"

	"github.com/rs/zerolog"

	"github.com/dvloznov/climate-risk/internal/domain"
	"github.com/dvloznov/climate-risk/internal/floodrisk"
	"github.com/dvloznov/climate-risk/internal/logger"
	"github.com/dvloznov/climate-risk/internal/riskweight"
)

var (
	// ErrMissingColumn is returned when a stage needs a column the file lacks.
	ErrMissingColumn = errors.New("missing column")
	// ErrDuplicateID is returned when two rows carry the same identifier.
	ErrDuplicateID = errors.New("duplicate id")
)

// Options control parsing of a portfolio file.
type Options struct {
	// Delimiter separates fields. Zero means detect from the header line.
	Delimiter rune
	// DefaultAEP replaces missing hazard probabilities. Zero means 0.01.
	DefaultAEP float64
	// RiskTable classifies ltv. Nil means riskweight.Default.
	RiskTable *riskweight.Table
}

func (o Options) withDefaults() Options {
	if o.DefaultAEP == 0 {
		o.DefaultAEP = domain.DefaultHazardProbability
	}
	if o.RiskTable == nil {
		o.RiskTable = riskweight.Default
	}
	return o
}

// Table is a loaded portfolio. Header and Rows keep the source cells so
// reports can echo the input columns unchanged.
type Table struct {
	Header    []string
	Rows      [][]string
	Records   []domain.LoanRecord
	Delimiter rune

	columns map[domain.Field]int
	derived map[domain.Field]bool
	hqCol   int
}

// Reader fetches raw bytes for a URI. Implemented by gcs.ObjectStore.
type Reader interface {
	Read(ctx context.Context, uri string) ([]byte, error)
}

// LoadURI reads uri through r and parses it.
func LoadURI(ctx context.Context, r Reader, uri string, opts Options) (*Table, error) {
	data, err := r.Read(ctx, uri)
	if err != nil {
		return nil, fmt.Errorf("LoadURI: read %s: %w", uri, err)
	}
	tbl, err := Load(ctx, bytes.NewReader(data), opts)
	if err != nil {
		return nil, fmt.Errorf("LoadURI: %s: %w", uri, err)
	}
	return tbl, nil
}

// Load parses a delimited portfolio. Unparseable numeric cells become NaN.
func Load(ctx context.Context, r io.Reader, opts Options) (*Table, error) {
	log := logger.FromContext(ctx)
	opts = opts.withDefaults()

	raw, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("Load: read input: %w", err)
	}
	raw = bytes.TrimPrefix(raw, []byte("\xef\xbb\xbf"))

	delim := opts.Delimiter
	if delim == 0 {
		delim = DetectDelimiter(raw)
	}

	cr := csv.NewReader(bytes.NewReader(raw))
	cr.Comma = delim
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.TrimLeadingSpace = true

	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("Load: parse csv: %w", err)
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("Load: empty input")
	}

	tbl := &Table{
		Header:    rows[0],
		Rows:      rows[1:],
		Delimiter: delim,
		columns:   mapColumns(rows[0]),
		derived:   make(map[domain.Field]bool),
		hqCol:     hqColumn(rows[0]),
	}

	// drop trailing blank lines
	for len(tbl.Rows) > 0 && isBlank(tbl.Rows[len(tbl.Rows)-1]) {
		tbl.Rows = tbl.Rows[:len(tbl.Rows)-1]
	}

	tbl.Records = make([]domain.LoanRecord, len(tbl.Rows))
	for i, row := range tbl.Rows {
		tbl.Records[i] = tbl.parseRow(i, row, opts)
	}
	if err := tbl.assignIDs(log); err != nil {
		return nil, fmt.Errorf("Load: %w", err)
	}
	tbl.markDerived()

	log.Debug().
		Int("rows", len(tbl.Records)).
		Str("delimiter", string(delim)).
		Strs("columns", tbl.Columns()).
		Msg("portfolio loaded")

	return tbl, nil
}

func (t *Table) cell(row []string, f domain.Field) (string, bool) {
	i, ok := t.columns[f]
	if !ok || i >= len(row) {
		return "", false
	}
	return row[i], true
}

func (t *Table) parseRow(i int, row []string, opts Options) domain.LoanRecord {
	rec := domain.NewLoanRecord(i + 1)
	rec.Row = i

	for f := range t.columns {
		switch f {
		case domain.FieldID:
		case domain.FieldEnergyClass:
			s, _ := t.cell(row, f)
			rec.EnergyClass = NormalizeEnergyClass(s)
		case domain.FieldBuildYear:
			s, _ := t.cell(row, f)
			rec.BuildYear = strings.TrimSpace(s)
		case domain.FieldFloodLevel:
			s, _ := t.cell(row, f)
			rec.FloodLevel = strings.TrimSpace(s)
		default:
			s, _ := t.cell(row, f)
			rec.SetValue(f, ParseLocaleFloat(s))
		}
	}

	if t.hqCol >= 0 {
		label := ""
		if t.hqCol < len(row) {
			label = row[t.hqCol]
		}
		ApplyHQ(&rec, label)
	}

	Derive(&rec, opts.DefaultAEP, opts.RiskTable)
	return rec
}

// ApplyHQ fills the flood level and hazard probability of a record from the
// "HQ T" label of its flood zone. Values read from their own columns win.
// Records outside any zone keep the default AEP and become very low.
func ApplyHQ(rec *domain.LoanRecord, label string) {
	if rec.FloodLevel == "" {
		rec.FloodLevel = string(floodrisk.LevelForHQ(label))
	}
	if math.IsNaN(rec.HazardProbability) {
		if aep, err := floodrisk.AEPForHQ(label); err == nil {
			rec.HazardProbability = aep
		}
	}
}

// assignIDs keeps the identifiers read from the id column and numbers rows
// without a usable id after the largest one read, so synthesized ids never
// collide. Without an id column rows are numbered from 1.
func (t *Table) assignIDs(log zerolog.Logger) error {
	if !t.HasColumn(domain.FieldID) {
		return nil
	}

	parsed := make([]bool, len(t.Records))
	seen := make(map[int]int, len(t.Records))
	maxID := 0
	for i, row := range t.Rows {
		s, _ := t.cell(row, domain.FieldID)
		id, ok := parseID(s)
		if !ok {
			continue
		}
		if prev, dup := seen[id]; dup {
			// header is line 1
			return fmt.Errorf("%w: %d on lines %d and %d", ErrDuplicateID, id, prev+2, i+2)
		}
		seen[id] = i
		parsed[i] = true
		t.Records[i].ID = id
		if id > maxID {
			maxID = id
		}
	}

	next := maxID
	for i := range t.Records {
		if parsed[i] {
			continue
		}
		next++
		s, _ := t.cell(t.Rows[i], domain.FieldID)
		log.Warn().Str("cell", s).Int("line", i+2).Int("assigned_id", next).Msg("unusable id, assigned a new one")
		t.Records[i].ID = next
	}
	return nil
}

// Derive fills the computed fields of a record in place: property value from
// area and price, ltv from loan and value, loan from ltv and value, the
// default AEP and the risk weight.
func Derive(rec *domain.LoanRecord, defaultAEP float64, table *riskweight.Table) {
	if math.IsNaN(rec.PropertyValue) && !math.IsNaN(rec.FloorArea) && !math.IsNaN(rec.PricePerArea) {
		rec.PropertyValue = rec.FloorArea * rec.PricePerArea
	}

	hasValue := !math.IsNaN(rec.PropertyValue)
	hasLoan := !math.IsNaN(rec.LoanAmount)
	switch {
	case hasValue && hasLoan:
		rec.LTV = domain.LoanToValue(rec.LoanAmount, rec.PropertyValue)
	case hasValue && !math.IsNaN(rec.LTV):
		rec.LoanAmount = rec.LTV * rec.PropertyValue
	}

	if math.IsNaN(rec.HazardProbability) {
		rec.HazardProbability = defaultAEP
	}

	rec.RiskWeight = math.NaN()
	if w, err := table.Classify(rec.LTV); err == nil {
		rec.RiskWeight = w
	}
}

func (t *Table) markDerived() {
	_, pv := t.columns[domain.FieldPropertyValue]
	_, area := t.columns[domain.FieldFloorArea]
	_, price := t.columns[domain.FieldPricePerArea]
	_, loan := t.columns[domain.FieldLoanAmount]
	_, ltv := t.columns[domain.FieldLTV]

	if !pv && area && price {
		t.derived[domain.FieldPropertyValue] = true
		pv = true
	}
	if !ltv && pv && loan {
		t.derived[domain.FieldLTV] = true
		ltv = true
	}
	if !loan && pv && ltv {
		t.derived[domain.FieldLoanAmount] = true
	}
	t.derived[domain.FieldHazardProbability] = true
	t.derived[domain.FieldRiskWeight] = true
}

// HasField reports whether f is present in the file or derivable from it.
func (t *Table) HasField(f domain.Field) bool {
	if f == domain.FieldID {
		return true
	}
	if _, ok := t.columns[f]; ok {
		return true
	}
	return t.derived[f]
}

// Require checks that every field is present or derivable.
func (t *Table) Require(fields ...domain.Field) error {
	var missing []string
	for _, f := range fields {
		if !t.HasField(f) {
			missing = append(missing, string(f))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: %s", ErrMissingColumn, strings.Join(missing, ", "))
	}
	return nil
}

// Complete returns the records whose listed fields are all usable, in order.
// Each stage filters with its own field set; the table itself is never trimmed.
func (t *Table) Complete(fields ...domain.Field) []domain.LoanRecord {
	out := make([]domain.LoanRecord, 0, len(t.Records))
	for _, rec := range t.Records {
		ok := true
		for _, f := range fields {
			if !rec.Has(f) {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, rec)
		}
	}
	return out
}

// Columns lists the recognised canonical column names in header order.
func (t *Table) Columns() []string {
	out := make([]string, 0, len(t.columns))
	for i, h := range t.Header {
		if f, ok := FieldForHeader(h); ok && t.columns[f] == i {
			out = append(out, string(f))
		}
	}
	return out
}

// HasColumn reports whether the source file carried a header for f.
func (t *Table) HasColumn(f domain.Field) bool {
	_, ok := t.columns[f]
	return ok
}

// NormalizeEnergyClass upper-cases and trims an energy label. "A plus" and
// "A+" both become "A+".
func NormalizeEnergyClass(s string) string {
	s = strings.ToUpper(strings.TrimSpace(strings.Trim(s, `"'`)))
	s = strings.ReplaceAll(s, " ", "")
	s = strings.Replace(s, "PLUS", "+", 1)
	return s
}

// DetectDelimiter picks ';' or ',' by counting them in the first line.
func DetectDelimiter(data []byte) rune {
	line := data
	if i := bytes.IndexByte(data, '\n'); i >= 0 {
		line = data[:i]
	}
	semi := bytes.Count(line, []byte(";"))
	comma := bytes.Count(line, []byte(","))
	tab := bytes.Count(line, []byte("\t"))
	switch {
	case tab > semi && tab > comma:
		return '\t'
	case comma > semi:
		return ','
	default:
		return ';'
	}
}

func isBlank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
