package dynacmd

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"cxcli/internal/apispec"
	"cxcli/internal/credentials"
	"cxcli/internal/manifest"
	"cxcli/internal/output"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/stretchr/testify/require"
)

type captured struct {
	method  string
	path    string
	query   url.Values
	header  http.Header
	body    []byte
	form    map[string]string
	upload  string
	content string
}

type apiServer struct {
	*httptest.Server
	mu     sync.Mutex
	last   *captured
	calls  int
	status int
	reply  string
}

func newAPIServer(t *testing.T, status int, reply string) *apiServer {
	t.Helper()
	s := &apiServer{status: status, reply: reply}
	s.Server = httptest.NewTLSServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		c := &captured{
			method:  r.Method,
			path:    r.URL.EscapedPath(),
			query:   r.URL.Query(),
			header:  r.Header.Clone(),
			content: r.Header.Get("Content-Type"),
		}
		if r.MultipartForm == nil && r.Header.Get("Content-Type") != "" && r.Header.Get("Content-Type") != "application/json" {
			if err := r.ParseMultipartForm(1 << 20); err == nil {
				c.form = make(map[string]string)
				for k, v := range r.MultipartForm.Value {
					c.form[k] = v[0]
				}
				if files := r.MultipartForm.File["attachment"]; len(files) == 1 {
					f, _ := files[0].Open()
					data, _ := io.ReadAll(f)
					_ = f.Close()
					c.upload = files[0].Filename + ":" + string(data)
				}
			}
		} else {
			c.body, _ = io.ReadAll(r.Body)
		}
		s.mu.Lock()
		s.last = c
		s.calls++
		s.mu.Unlock()
		w.WriteHeader(s.status)
		_, _ = w.Write([]byte(s.reply))
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *apiServer) request() *captured {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last
}

func (s *apiServer) host(t *testing.T) string {
	u, err := url.Parse(s.URL)
	require.NoError(t, err)
	return u.Host
}

func systemlogSpec(host string) apispec.Document {
	return apispec.Document{
		"swagger":  "2.0",
		"info":     map[string]any{"title": "System Log"},
		"host":     host,
		"basePath": "/systemlog",
		"paths": map[string]any{
			"/records": map[string]any{
				"get": map[string]any{
					"operationId": "GetRecords",
					"summary":     "List records",
					"parameters": []any{
						map[string]any{"name": "limit", "in": "query", "type": "integer"},
						map[string]any{"name": "Authorization", "in": "header", "type": "string", "required": true},
					},
				},
				"post": map[string]any{
					"operationId": "CreateRecord",
					"parameters": []any{
						map[string]any{"name": "body", "in": "body", "required": true, "schema": map[string]any{
							"type":     "object",
							"required": []any{"message"},
							"properties": map[string]any{
								"message": map[string]any{"type": "string"},
								"enabled": map[string]any{"type": "boolean"},
								"tags":    map[string]any{"type": "array", "items": map[string]any{"type": "string"}},
								"meta": map[string]any{"type": "object", "properties": map[string]any{
									"source": map[string]any{"type": "string"},
									"level":  map[string]any{"type": "integer"},
								}},
							},
						}},
					},
				},
			},
			"/records/{id}": map[string]any{
				"get": map[string]any{
					"operationId": "GetRecord",
					"parameters": []any{
						map[string]any{"name": "id", "in": "path", "type": "string", "required": true},
					},
				},
			},
			"/customers/{customerid}/flags": map[string]any{
				"get": map[string]any{
					"operationId": "GetFlags",
					"parameters": []any{
						map[string]any{"name": "customerid", "in": "path", "type": "string", "required": true},
						map[string]any{"name": "isCloud", "in": "query", "type": "string", "required": true},
						map[string]any{"name": "detailed", "in": "query", "type": "string", "enum": []any{"True", "False"}},
						map[string]any{"name": "cliquery", "in": "query", "type": "string"},
					},
				},
			},
			"/upload": map[string]any{
				"post": map[string]any{
					"operationId": "Upload",
					"parameters": []any{
						map[string]any{"name": "attachment", "in": "formData", "type": "file", "required": true},
						map[string]any{"name": "note", "in": "formData", "type": "string"},
					},
				},
			},
		},
	}
}

type staticAuth string

func (s staticAuth) WithAuthorization(_ context.Context, req *http.Request) error {
	req.Header.Set("Authorization", "CwsAuth bearer="+string(s))
	return nil
}

type harness struct {
	server *apiServer
	out    bytes.Buffer
	logs   bytes.Buffer
	auth   AuthorizerFunc
}

func newHarness(t *testing.T, status int, reply string) *harness {
	h := &harness{server: newAPIServer(t, status, reply)}
	h.auth = func(context.Context) (Authorizer, error) { return staticAuth("tok"), nil }
	return h
}

func (h *harness) run(t *testing.T, args ...string) error {
	t.Helper()
	logger := log.New(&h.logs)
	svc, err := apispec.NewNormalizer(logger).Normalize("systemlog", systemlogSpec(h.server.host(t)))
	require.NoError(t, err)
	monitor := apispec.NewServiceStub("adm_monitor", "ADM Monitor")
	m := &manifest.Manifest{Services: []*apispec.ServiceSpec{monitor, svc}}

	exec := NewExecutor(h.auth, h.server.Client(), "cxcli/0.1", &h.out, logger)
	root := &cobra.Command{Use: "cx", SilenceErrors: true, SilenceUsage: true}
	root.SetOut(&h.out)
	root.SetErr(&h.out)
	root.AddCommand(NewBuilder(m, exec, "cust1", logger).BuildCommands()...)
	root.SetArgs(args)
	return root.ExecuteContext(context.Background())
}

func TestExecuteQuery(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{"Items": [{"Message": "a"}]}`)
	require.NoError(t, h.run(t, "systemlog", "GetRecords", "--limit", "2"))

	req := h.server.request()
	require.Equal(t, http.MethodGet, req.method)
	require.Equal(t, "/systemlog/records", req.path)
	require.Equal(t, url.Values{"limit": {"2"}}, req.query)
	require.Equal(t, "CwsAuth bearer=tok", req.header.Get("Authorization"))
	require.Equal(t, "cxcli/0.1", req.header.Get("User-Agent"))
	_, err := uuid.Parse(req.header.Get("Citrix-TransactionId"))
	require.NoError(t, err)
	require.Empty(t, req.body)

	require.JSONEq(t, `{"Items": [{"Message": "a"}]}`, h.out.String())
}

func TestExecuteTable(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{"Items":[{"Message":"a"},{"Message":"b"}]}`)
	require.NoError(t, h.run(t, "systemlog", "GetRecords", "--output-as", "csv"))
	require.Equal(t, "Message\na\nb\n", h.out.String())

	h.out.Reset()
	require.NoError(t, h.run(t, "systemlog", "GetRecords", "--output-as", "TABLE"))
	require.Contains(t, h.out.String(), "Message")
	require.Contains(t, h.out.String(), "a")
	require.Contains(t, h.out.String(), "b")
}

func TestExecuteInvalidQuery(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{"Items":[{"Message":"a"}]}`)
	err := h.run(t, "systemlog", "GetRecords", "--cliquery", "Items[")
	var qErr *output.QueryFilterError
	require.True(t, errors.As(err, &qErr))
	require.Empty(t, h.out.String())
}

func TestExecutePathEscaping(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	require.NoError(t, h.run(t, "systemlog", "GetRecord", "--id", "a b/c"))
	require.Equal(t, "/systemlog/records/a%20b%2Fc", h.server.request().path)
}

func TestExecuteBody(t *testing.T) {
	h := newHarness(t, http.StatusCreated, `{"id": 1}`)
	require.NoError(t, h.run(t, "systemlog", "CreateRecord",
		"--message", "hi",
		"--tags", `{"k": 1}`,
		"--tags", "plain",
		"--meta-source", "cli",
		"--meta-level", "3",
	))
	req := h.server.request()
	require.Equal(t, http.MethodPost, req.method)
	require.Equal(t, "application/json", req.content)
	require.JSONEq(t, `{"message": "hi", "tags": [{"k": 1}, "plain"], "meta": {"source": "cli", "level": 3}}`, string(req.body))
}

func TestExecuteBodyBoolean(t *testing.T) {
	h := newHarness(t, http.StatusCreated, `{}`)
	require.NoError(t, h.run(t, "systemlog", "CreateRecord", "--message", "hi", "--enabled=false"))
	require.JSONEq(t, `{"message": "hi", "enabled": false}`, string(h.server.request().body))

	require.NoError(t, h.run(t, "systemlog", "CreateRecord", "--message", "hi", "--enabled"))
	require.JSONEq(t, `{"message": "hi", "enabled": true}`, string(h.server.request().body))

	require.NoError(t, h.run(t, "systemlog", "CreateRecord", "--message", "hi"))
	require.JSONEq(t, `{"message": "hi"}`, string(h.server.request().body))
}

func TestExecuteRequiredFlag(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	err := h.run(t, "systemlog", "CreateRecord", "--tags", "x")
	require.ErrorContains(t, err, `"message"`)
	require.Nil(t, h.server.request())
}

func TestExecuteDefaults(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	require.NoError(t, h.run(t, "systemlog", "GetFlags", "--detailed"))
	req := h.server.request()
	require.Equal(t, "/systemlog/customers/cust1/flags", req.path)
	require.Equal(t, "true", req.query.Get("isCloud"))
	require.Equal(t, "true", req.query.Get("detailed"))

	require.NoError(t, h.run(t, "systemlog", "GetFlags", "--customerid", "other", "--isCloud", "false"))
	req = h.server.request()
	require.Equal(t, "/systemlog/customers/other/flags", req.path)
	require.Equal(t, "false", req.query.Get("isCloud"))
	require.Empty(t, req.query.Get("detailed"))
}

func TestExecuteMultipart(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	path := filepath.Join(t.TempDir(), "report.txt")
	require.NoError(t, os.WriteFile(path, []byte("contents"), 0600))

	require.NoError(t, h.run(t, "systemlog", "Upload", "--attachment", path, "--note", "n1"))
	req := h.server.request()
	require.Equal(t, "report.txt:contents", req.upload)
	require.Equal(t, map[string]string{"note": "n1"}, req.form)
}

func TestExecuteFailureStatus(t *testing.T) {
	h := newHarness(t, http.StatusNotFound, `{"error": "missing"}`)
	err := h.run(t, "systemlog", "GetRecords")
	var tErr *TransportError
	require.True(t, errors.As(err, &tErr))
	require.Equal(t, http.StatusNotFound, tErr.StatusCode)
	require.JSONEq(t, `{"error": "missing"}`, h.out.String())
}

func TestExecuteDecodeError(t *testing.T) {
	h := newHarness(t, http.StatusOK, `not json`)
	err := h.run(t, "systemlog", "GetRecords")
	var decErr *output.DecodeError
	require.True(t, errors.As(err, &decErr))
	require.Equal(t, "not json\n", h.out.String())
}

func TestExecuteOutputBinary(t *testing.T) {
	h := newHarness(t, http.StatusOK, "\x00\x01binary")
	path := filepath.Join(t.TempDir(), "out.bin")
	require.NoError(t, h.run(t, "systemlog", "GetRecords", "--output-binary", path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "\x00\x01binary", string(data))
	require.Equal(t, "Wrote result to "+path+".\n", h.out.String())

	err = h.run(t, "systemlog", "GetRecords", "--output-binary", path, "--output-as", "yaml")
	require.Error(t, err)
}

func TestExecuteNotConfigured(t *testing.T) {
	h := newHarness(t, http.StatusOK, `{}`)
	h.auth = func(context.Context) (Authorizer, error) { return nil, credentials.ErrNotConfigured }
	err := h.run(t, "systemlog", "GetRecords")
	require.ErrorIs(t, err, credentials.ErrNotConfigured)
	require.Nil(t, h.server.request())
}
