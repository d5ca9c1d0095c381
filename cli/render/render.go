// Package render formats seam CLI output.
//
// Format selection:
//   - --format always wins; unknown formats are errors
//   - otherwise table on a TTY and json elsewhere
//
// --tui is opt-in and only available for read-only views.
package render

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"slices"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v2"
	"gopkg.in/yaml.v3"

	"github.com/pithecene-io/seam/cli/tui"
)

// Format represents an output format.
type Format string

// Supported formats.
const (
	FormatJSON  Format = "json"
	FormatTable Format = "table"
	FormatYAML  Format = "yaml"
)

// maxInlineItems is the longest slice printed in full in table output.
const maxInlineItems = 8

// ParseFormat parses a format string. Empty input returns "" so the
// caller can pick a default.
func ParseFormat(s string) (Format, error) {
	switch strings.ToLower(s) {
	case "json":
		return FormatJSON, nil
	case "table":
		return FormatTable, nil
	case "yaml":
		return FormatYAML, nil
	case "":
		return "", nil
	default:
		return "", fmt.Errorf("invalid format: %q (must be json, table, or yaml)", s)
	}
}

// Renderer handles output formatting.
type Renderer struct {
	format Format
	out    io.Writer
}

// NewRenderer creates a renderer from the --format flag, falling back to
// fallback (typically from the config file) and then to TTY detection.
func NewRenderer(c *cli.Context, fallback string) (*Renderer, error) {
	s := c.String("format")
	if s == "" {
		s = fallback
	}
	format, err := ParseFormat(s)
	if err != nil {
		return nil, err
	}

	if format == "" {
		if isTTY(os.Stdout) {
			format = FormatTable
		} else {
			format = FormatJSON
		}
	}

	return &Renderer{format: format, out: c.App.Writer}, nil
}

// NewRendererWithWriter creates a renderer with a custom writer.
func NewRendererWithWriter(format Format, out io.Writer) *Renderer {
	return &Renderer{format: format, out: out}
}

// Format returns the selected format.
func (r *Renderer) Format() Format { return r.format }

// Render outputs the data in the configured format.
func (r *Renderer) Render(data any) error {
	switch r.format {
	case FormatJSON:
		return r.renderJSON(data)
	case FormatTable:
		return r.renderTable(data)
	case FormatYAML:
		return r.renderYAML(data)
	default:
		return fmt.Errorf("unknown format: %s", r.format)
	}
}

// RenderTUI runs the interactive view for viewType.
func (r *Renderer) RenderTUI(viewType string, data any, refresh tui.RefreshFunc) error {
	if !tui.IsTUISupported(viewType) {
		return fmt.Errorf("--tui is not supported for %s", viewType)
	}
	return tui.Run(viewType, data, refresh)
}

func (r *Renderer) renderJSON(data any) error {
	enc := json.NewEncoder(r.out)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (r *Renderer) renderYAML(data any) error {
	enc := yaml.NewEncoder(r.out)
	enc.SetIndent(2)
	if err := enc.Encode(data); err != nil {
		return err
	}
	return enc.Close()
}

func (r *Renderer) renderTable(data any) error {
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice {
		return r.renderSliceTable(v)
	}
	return r.renderStructTable(v)
}

func (r *Renderer) renderSliceTable(v reflect.Value) error {
	if v.Len() == 0 {
		_, err := fmt.Fprintln(r.out, "(no results)")
		return err
	}

	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	first := indirect(v.Index(0))
	if first.Kind() != reflect.Struct {
		for i := range v.Len() {
			fmt.Fprintln(w, formatValue(v.Index(i)))
		}
		return w.Flush()
	}

	t := first.Type()
	var headers []string
	var fields []int
	for i := range t.NumField() {
		if name, ok := fieldName(t.Field(i)); ok {
			headers = append(headers, strings.ToUpper(name))
			fields = append(fields, i)
		}
	}
	fmt.Fprintln(w, strings.Join(headers, "\t"))

	for i := range v.Len() {
		row := indirect(v.Index(i))
		values := make([]string, len(fields))
		for j, f := range fields {
			values[j] = formatValue(row.Field(f))
		}
		fmt.Fprintln(w, strings.Join(values, "\t"))
	}
	return w.Flush()
}

func (r *Renderer) renderStructTable(v reflect.Value) error {
	w := tabwriter.NewWriter(r.out, 0, 0, 2, ' ', 0)
	v = indirect(v)

	switch v.Kind() {
	case reflect.Struct:
		t := v.Type()
		for i := range v.NumField() {
			name, ok := fieldName(t.Field(i))
			if !ok {
				continue
			}
			fmt.Fprintf(w, "%s:\t%s\n", name, formatValue(v.Field(i)))
		}
	case reflect.Map:
		keys := v.MapKeys()
		names := make([]string, len(keys))
		byName := make(map[string]reflect.Value, len(keys))
		for i, k := range keys {
			names[i] = fmt.Sprint(k.Interface())
			byName[names[i]] = v.MapIndex(k)
		}
		slices.Sort(names)
		for _, n := range names {
			fmt.Fprintf(w, "%s:\t%s\n", n, formatValue(byName[n]))
		}
	case reflect.Invalid:
		fmt.Fprintln(w, "(none)")
	default:
		fmt.Fprintf(w, "%v\n", v.Interface())
	}
	return w.Flush()
}

// fieldName prefers the json tag name. Unexported and "-" fields are
// skipped.
func fieldName(f reflect.StructField) (string, bool) {
	if !f.IsExported() {
		return "", false
	}
	if tag := f.Tag.Get("json"); tag != "" {
		name, _, _ := strings.Cut(tag, ",")
		if name == "-" {
			return "", false
		}
		if name != "" {
			return name, true
		}
	}
	return strings.ToLower(f.Name), true
}

func indirect(v reflect.Value) reflect.Value {
	for v.IsValid() && (v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface) {
		if v.IsNil() {
			return reflect.Value{}
		}
		v = v.Elem()
	}
	return v
}

func formatValue(v reflect.Value) string {
	v = indirect(v)
	if !v.IsValid() {
		return ""
	}

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "[]"
		}
		if v.Len() > maxInlineItems {
			return fmt.Sprintf("[%d items]", v.Len())
		}
		parts := make([]string, v.Len())
		for i := range v.Len() {
			parts[i] = formatValue(v.Index(i))
		}
		return "[" + strings.Join(parts, " ") + "]"
	case reflect.Map:
		if v.Len() == 0 {
			return "{}"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	case reflect.Struct:
		if s, ok := v.Interface().(fmt.Stringer); ok {
			return s.String()
		}
		return "{...}"
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// isTTY returns true if the file is a terminal.
func isTTY(f *os.File) bool {
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}
