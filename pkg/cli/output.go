package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"reflect"
	"strings"
	"text/tabwriter"

	"gopkg.in/yaml.v3"
)

type OutputFormat string

const (
	OutputTable OutputFormat = "table"
	OutputJSON  OutputFormat = "json"
	OutputYAML  OutputFormat = "yaml"
)

type OutputOptions struct {
	Format OutputFormat
	Quiet  bool
	Writer io.Writer
	// ErrWriter receives errors and progress; defaults to os.Stderr.
	ErrWriter io.Writer
}

func NewOutputOptions() *OutputOptions {
	return &OutputOptions{
		Format:    OutputTable,
		Quiet:     false,
		Writer:    os.Stdout,
		ErrWriter: os.Stderr,
	}
}

func (o *OutputOptions) errWriter() io.Writer {
	if o.ErrWriter == nil {
		return os.Stderr
	}
	return o.ErrWriter
}

func FormatOutput(data any, format OutputFormat) (string, error) {
	switch format {
	case OutputJSON:
		return formatJSON(data)
	case OutputYAML:
		return formatYAML(data)
	default:
		return formatTable(data)
	}
}

func formatJSON(data any) (string, error) {
	b, err := json.MarshalIndent(data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshal JSON: %w", err)
	}
	return string(b) + "\n", nil
}

func formatYAML(data any) (string, error) {
	b, err := yaml.Marshal(data)
	if err != nil {
		return "", fmt.Errorf("marshal YAML: %w", err)
	}
	return string(b), nil
}

// formatTable renders a slice of structs as columns and a single struct as
// key/value rows. Column names come from the json tags.
func formatTable(data any) (string, error) {
	if data == nil {
		return "", nil
	}

	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return "", nil
		}
		v = v.Elem()
	}

	var sb strings.Builder
	w := tabwriter.NewWriter(&sb, 0, 0, 2, ' ', 0)

	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "No items\n", nil
		}
		fields := tableFields(v.Type().Elem())
		headers := make([]string, len(fields))
		for i, f := range fields {
			headers[i] = strings.ToUpper(f.name)
		}
		fmt.Fprintln(w, strings.Join(headers, "\t"))
		for i := 0; i < v.Len(); i++ {
			row := reflect.Indirect(v.Index(i))
			values := make([]string, len(fields))
			for j, f := range fields {
				values[j] = formatValue(row.Field(f.index).Interface())
			}
			fmt.Fprintln(w, strings.Join(values, "\t"))
		}
	case reflect.Struct:
		for _, f := range tableFields(v.Type()) {
			fmt.Fprintf(w, "%s\t%s\n", f.name, formatValue(v.Field(f.index).Interface()))
		}
	case reflect.Map:
		iter := v.MapRange()
		for iter.Next() {
			fmt.Fprintf(w, "%v\t%s\n", iter.Key(), formatValue(iter.Value().Interface()))
		}
	default:
		return fmt.Sprintf("%v\n", data), nil
	}

	w.Flush()
	return sb.String(), nil
}

type tableField struct {
	name  string
	index int
}

func tableFields(t reflect.Type) []tableField {
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}
	if t.Kind() != reflect.Struct {
		return nil
	}

	var fields []tableField
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if field.PkgPath != "" || field.Tag.Get("table") == "-" {
			continue
		}
		name := field.Tag.Get("json")
		if idx := strings.Index(name, ","); idx != -1 {
			name = name[:idx]
		}
		if name == "" || name == "-" {
			name = field.Name
		}
		fields = append(fields, tableField{name: name, index: i})
	}
	return fields
}

func formatValue(v any) string {
	if v == nil {
		return ""
	}

	rv := reflect.ValueOf(v)
	if rv.Kind() == reflect.Ptr {
		if rv.IsNil() {
			return ""
		}
		v = rv.Elem().Interface()
	}

	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	case int, int8, int16, int32, int64, uint, uint8, uint16, uint32, uint64:
		return fmt.Sprintf("%d", val)
	case float32, float64:
		return fmt.Sprintf("%.2f", val)
	case bool:
		return fmt.Sprintf("%t", val)
	case []string:
		return strings.Join(val, ",")
	default:
		b, err := json.Marshal(val)
		if err != nil {
			return fmt.Sprintf("%v", val)
		}
		return string(b)
	}
}

func PrintOutput(data any, opts *OutputOptions) error {
	if opts.Quiet {
		return nil
	}

	output, err := FormatOutput(data, opts.Format)
	if err != nil {
		return err
	}

	fmt.Fprint(opts.Writer, output)
	return nil
}

func PrintError(err error, opts *OutputOptions) {
	data := map[string]any{
		"success": false,
		"error": map[string]string{
			"message": err.Error(),
		},
	}
	switch opts.Format {
	case OutputJSON:
		b, _ := json.MarshalIndent(data, "", "  ")
		fmt.Fprintln(opts.errWriter(), string(b))
	case OutputYAML:
		b, _ := yaml.Marshal(data)
		fmt.Fprint(opts.errWriter(), string(b))
	default:
		fmt.Fprintf(opts.errWriter(), "Error: %v\n", err)
	}
}

func PrintSuccess(message string, opts *OutputOptions) {
	if opts.Quiet {
		return
	}

	data := map[string]any{
		"success": true,
		"message": message,
	}
	switch opts.Format {
	case OutputJSON:
		b, _ := json.MarshalIndent(data, "", "  ")
		fmt.Fprintln(opts.Writer, string(b))
	case OutputYAML:
		b, _ := yaml.Marshal(data)
		fmt.Fprint(opts.Writer, string(b))
	default:
		fmt.Fprintln(opts.Writer, message)
	}
}
