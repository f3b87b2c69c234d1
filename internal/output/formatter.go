package output

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/charmbracelet/log"
)

// Format selects how a response is rendered.
type Format string

const (
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
	FormatTable Format = "table"
	FormatCSV   Format = "csv"
	FormatRaw   Format = "rawprint"
)

// Formats lists the accepted values of the output selector.
var Formats = []string{string(FormatJSON), string(FormatYAML), string(FormatTable), string(FormatCSV), string(FormatRaw)}

const emptyResponse = "Empty response"

var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("5")).Padding(0, 1)
var cellStyle = lipgloss.NewStyle().Padding(0, 1)

// Formatter renders decoded responses.
type Formatter struct {
	w      io.Writer
	format Format
	logger *log.Logger
}

// NewFormatter creates a formatter writing to w.
func NewFormatter(w io.Writer, format Format, logger *log.Logger) *Formatter {
	if format == "" {
		format = FormatJSON
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Formatter{w: w, format: format, logger: logger}
}

// Format renders doc in the selected format.
func (f *Formatter) Format(doc *Document) error {
	switch f.format {
	case FormatJSON:
		data, err := doc.JSON(doc.Value, "  ")
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.w, string(data))
		return err
	case FormatYAML:
		data, err := doc.YAML(doc.Value)
		if err != nil {
			return err
		}
		_, err = f.w.Write(data)
		return err
	case FormatTable, FormatCSV:
		rows, ok := doc.rows(doc.Value)
		if !ok {
			f.logger.Error("not sure how to convert the result to rows, falling back to rawprint mode")
			return f.raw(doc)
		}
		if len(rows) == 0 {
			_, err := fmt.Fprintln(f.w, emptyResponse)
			return err
		}
		columns, cells := doc.grid(rows)
		if f.format == FormatCSV {
			return f.csv(columns, cells)
		}
		return f.table(columns, cells)
	case FormatRaw:
		return f.raw(doc)
	}
	return fmt.Errorf("unsupported output format: %s", f.format)
}

func (f *Formatter) raw(doc *Document) error {
	s, err := doc.formatValue(doc.Value)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(f.w, s)
	return err
}

func (f *Formatter) table(columns []string, cells [][]string) error {
	t := table.New().
		Border(lipgloss.NormalBorder()).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerStyle
			}
			return cellStyle
		}).
		Headers(columns...).
		Rows(cells...)
	_, err := fmt.Fprintln(f.w, t.Render())
	return err
}

func (f *Formatter) csv(columns []string, cells [][]string) error {
	w := csv.NewWriter(f.w)
	if err := w.Write(columns); err != nil {
		return err
	}
	if err := w.WriteAll(cells); err != nil {
		return err
	}
	return w.Error()
}

// rows finds the list of records inside a response: the response itself
// when it is a list, the only value of a single-key object, or an
// items/Items property.
func (d *Document) rows(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		if len(t) == 0 {
			return nil, true
		}
		if len(t) == 1 {
			for _, only := range t {
				return asRows(only)
			}
		}
		if items, ok := t["items"]; ok {
			return asRows(items)
		}
		if items, ok := t["Items"]; ok {
			return asRows(items)
		}
	}
	return nil, false
}

func asRows(v any) ([]any, bool) {
	switch t := v.(type) {
	case []any:
		return t, true
	case map[string]any:
		return []any{t}, true
	}
	return nil, false
}

// grid lays rows out under the keys of the first row. Rows that are not
// objects are shown in a single value column.
func (d *Document) grid(rows []any) ([]string, [][]string) {
	first, ok := rows[0].(map[string]any)
	var columns []string
	if ok {
		columns = d.keys(first)
	} else {
		columns = []string{"value"}
	}
	cells := make([][]string, 0, len(rows))
	for _, row := range rows {
		obj, isObj := row.(map[string]any)
		line := make([]string, len(columns))
		for i, col := range columns {
			var v any
			switch {
			case isObj:
				v = obj[col]
			case !ok:
				v = row
			}
			line[i], _ = d.formatValue(v)
		}
		cells = append(cells, line)
	}
	return columns, cells
}

func (d *Document) formatValue(v any) (string, error) {
	switch val := v.(type) {
	case nil:
		return "", nil
	case string:
		return val, nil
	case json.Number:
		return string(val), nil
	case float64:
		if val == float64(int64(val)) {
			return strconv.FormatInt(int64(val), 10), nil
		}
		return strconv.FormatFloat(val, 'g', -1, 64), nil
	case bool:
		return strconv.FormatBool(val), nil
	case map[string]any, []any:
		data, err := d.JSON(val, "")
		return string(data), err
	}
	return fmt.Sprintf("%v", v), nil
}
