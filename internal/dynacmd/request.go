package dynacmd

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"cxcli/internal/apispec"

	"github.com/spf13/pflag"
)

// requestParts holds flag values sorted by where they travel.
type requestParts struct {
	path     map[string]string
	query    url.Values
	header   http.Header
	body     map[string]any
	hasBody  bool
	formData []formField
}

type formField struct {
	name string
	file string // path of an attachment; empty for plain fields
	text string
}

// present reports whether a flag carries a value: it was set, or it is a
// string flag with an injected default.
func present(f *pflag.Flag) bool {
	if f == nil {
		return false
	}
	if f.Changed {
		return true
	}
	t := f.Value.Type()
	return (t == "string" || t == "enum") && f.DefValue != ""
}

// collect gathers the values of every parameter flag of op.
func collect(fs *pflag.FlagSet, op *apispec.Operation) (*requestParts, error) {
	parts := &requestParts{
		path:   make(map[string]string),
		query:  make(url.Values),
		header: make(http.Header),
		body:   make(map[string]any),
	}
	for _, ps := range op.Parameters {
		if outputFlag(ps.FlagName) {
			continue
		}
		if ps.Location == apispec.LocationBody {
			parts.hasBody = true
		}
		if len(ps.Nested) > 0 {
			obj := make(map[string]any)
			for _, n := range ps.Nested {
				v, ok, err := bodyValue(fs, n)
				if err != nil {
					return nil, err
				}
				if ok {
					obj[n.Name] = v
				}
			}
			if len(obj) > 0 {
				parts.add(ps, obj)
			}
			continue
		}
		f := fs.Lookup(ps.FlagName)
		if !present(f) {
			continue
		}
		switch ps.Location {
		case apispec.LocationPath:
			parts.path[ps.Name] = flagString(fs, f)
		case apispec.LocationQuery:
			if ps.Type == apispec.TypeArray {
				values, _ := fs.GetStringArray(ps.FlagName)
				for _, v := range values {
					parts.query.Add(ps.Name, v)
				}
				continue
			}
			parts.query.Set(ps.Name, flagString(fs, f))
		case apispec.LocationHeader:
			parts.header.Set(ps.Name, flagString(fs, f))
		case apispec.LocationFormData:
			field := formField{name: ps.Name}
			if ps.Type == apispec.TypeFile {
				field.file = f.Value.String()
			} else {
				field.text = flagString(fs, f)
			}
			parts.formData = append(parts.formData, field)
		case apispec.LocationBody:
			v, _, err := bodyValue(fs, ps)
			if err != nil {
				return nil, err
			}
			parts.body[ps.Name] = v
		}
	}
	return parts, nil
}

// outputFlag reports whether name is one of the flags every leaf carries.
// Parameters shadowed by them never reach the request.
func outputFlag(name string) bool {
	return name == flagOutputAs || name == flagOutputBinary || name == flagCliQuery
}

func (p *requestParts) add(ps *apispec.ParameterSpec, v map[string]any) {
	switch ps.Location {
	case apispec.LocationBody:
		p.body[ps.Name] = v
	default:
		data, _ := json.Marshal(v)
		p.addString(ps, string(data))
	}
}

func (p *requestParts) addString(ps *apispec.ParameterSpec, s string) {
	switch ps.Location {
	case apispec.LocationPath:
		p.path[ps.Name] = s
	case apispec.LocationQuery:
		p.query.Set(ps.Name, s)
	case apispec.LocationHeader:
		p.header.Set(ps.Name, s)
	case apispec.LocationFormData:
		p.formData = append(p.formData, formField{name: ps.Name, text: s})
	}
}

// flagString renders a flag value for the URL or a header. Multi-value
// flags are joined with commas.
func flagString(fs *pflag.FlagSet, f *pflag.Flag) string {
	if f.Value.Type() == "stringArray" {
		values, _ := fs.GetStringArray(f.Name)
		return strings.Join(values, ",")
	}
	return f.Value.String()
}

// bodyValue converts a flag into its JSON body representation.
func bodyValue(fs *pflag.FlagSet, ps *apispec.ParameterSpec) (any, bool, error) {
	f := fs.Lookup(ps.FlagName)
	if !present(f) {
		return nil, false, nil
	}
	raw := f.Value.String()
	switch f.Value.Type() {
	case "bool":
		b, err := fs.GetBool(ps.FlagName)
		return b, true, err
	case "int64":
		n, err := strconv.ParseInt(raw, 10, 64)
		return n, true, err
	case "float64":
		n, err := strconv.ParseFloat(raw, 64)
		return n, true, err
	case "stringArray":
		values, _ := fs.GetStringArray(ps.FlagName)
		return jsonElements(values), true, nil
	}
	if ps.Type == apispec.TypeFile {
		data, err := os.ReadFile(raw)
		if err != nil {
			return nil, false, fmt.Errorf("failed to read --%s: %w", ps.FlagName, err)
		}
		return string(data), true, nil
	}
	return raw, true, nil
}

// jsonElements parses each element as JSON, keeping elements that do not
// parse as plain strings.
func jsonElements(values []string) []any {
	out := make([]any, 0, len(values))
	for _, v := range values {
		var parsed any
		if err := json.Unmarshal([]byte(v), &parsed); err != nil {
			out = append(out, v)
			continue
		}
		out = append(out, parsed)
	}
	return out
}

// target substitutes path values into the operation URL template.
func (p *requestParts) target(template string) string {
	u := template
	for name, value := range p.path {
		u = strings.ReplaceAll(u, "{"+name+"}", url.PathEscape(value))
	}
	if len(p.query) > 0 {
		u += "?" + p.query.Encode()
	}
	return u
}

// encodeBody returns the request body and its content type. Operations
// with form data send multipart; operations with body parameters send
// JSON; all others send nothing.
func (p *requestParts) encodeBody() (io.Reader, string, error) {
	if len(p.formData) > 0 {
		var buf bytes.Buffer
		w := multipart.NewWriter(&buf)
		for _, field := range p.formData {
			if field.file == "" {
				if err := w.WriteField(field.name, field.text); err != nil {
					return nil, "", err
				}
				continue
			}
			if err := attach(w, field); err != nil {
				return nil, "", err
			}
		}
		if err := w.Close(); err != nil {
			return nil, "", err
		}
		return &buf, w.FormDataContentType(), nil
	}
	if !p.hasBody {
		return nil, "", nil
	}
	data, err := json.Marshal(p.body)
	if err != nil {
		return nil, "", err
	}
	return bytes.NewReader(data), "application/json", nil
}

func attach(w *multipart.Writer, field formField) error {
	f, err := os.Open(field.file)
	if err != nil {
		return fmt.Errorf("failed to open --%s: %w", field.name, err)
	}
	defer f.Close()
	part, err := w.CreateFormFile(field.name, filepath.Base(field.file))
	if err != nil {
		return err
	}
	_, err = io.Copy(part, f)
	return err
}
