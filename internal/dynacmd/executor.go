package dynacmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"cxcli/internal/apispec"
	"cxcli/internal/output"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

const (
	flagOutputAs     = "output-as"
	flagOutputBinary = "output-binary"
	flagCliQuery     = "cliquery"
)

// TransportError reports a business call answered with a non-success
// status. The response has already been rendered when it is returned.
type TransportError struct {
	Method     string
	URL        string
	StatusCode int
}

func (e *TransportError) Error() string {
	return fmt.Sprintf("failure from %s - %d", e.URL, e.StatusCode)
}

// Authorizer adds authorization to an outgoing request.
type Authorizer interface {
	WithAuthorization(ctx context.Context, req *http.Request) error
}

// AuthorizerFunc resolves the authorizer for an invocation. It is called
// only when a command actually runs so that missing credentials never block
// building the command tree.
type AuthorizerFunc func(ctx context.Context) (Authorizer, error)

// Executor executes operations by calling the API
type Executor struct {
	auth       AuthorizerFunc
	httpClient *http.Client
	userAgent  string
	out        io.Writer
	logger     *log.Logger
}

// NewExecutor creates a new executor writing rendered responses to out.
func NewExecutor(auth AuthorizerFunc, httpClient *http.Client, userAgent string, out io.Writer, logger *log.Logger) *Executor {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	if logger == nil {
		logger = log.Default()
	}
	return &Executor{
		auth:       auth,
		httpClient: httpClient,
		userAgent:  userAgent,
		out:        out,
		logger:     logger,
	}
}

// Execute runs op with the flag values of cmd.
func (e *Executor) Execute(cmd *cobra.Command, op *apispec.Operation) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	authorizer, err := e.auth(ctx)
	if err != nil {
		return err
	}

	parts, err := collect(cmd.Flags(), op)
	if err != nil {
		return err
	}
	target := parts.target(op.URLTemplate)
	body, contentType, err := parts.encodeBody()
	if err != nil {
		return fmt.Errorf("failed to encode request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, httpMethod(op.Method), target, body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	for name, values := range parts.header {
		req.Header[name] = values
	}
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}
	req.Header.Set("User-Agent", e.userAgent)
	req.Header.Set("Citrix-TransactionId", uuid.NewString())
	if err := authorizer.WithAuthorization(ctx, req); err != nil {
		return err
	}

	e.logger.Debug("sent request", "method", req.Method, "url", target)
	e.logger.Debug("sent headers", "headers", redact(req.Header))
	e.logger.Debug("sent params", "query", parts.query.Encode())
	e.logger.Debug("sent body", "body", parts.body)

	resp, err := e.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response: %w", err)
	}

	var failure error
	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		e.logger.Info("success", "url", target, "status", resp.StatusCode)
	} else {
		e.logger.Error("failure", "url", target, "status", resp.StatusCode)
		failure = &TransportError{Method: req.Method, URL: target, StatusCode: resp.StatusCode}
	}
	e.logger.Debug("received headers", "headers", resp.Header)
	e.logger.Debug("received body", "body", string(respBody))

	if err := e.render(cmd, respBody); err != nil {
		return err
	}
	return failure
}

func (e *Executor) render(cmd *cobra.Command, respBody []byte) error {
	fs := cmd.Flags()
	if path, _ := fs.GetString(flagOutputBinary); path != "" {
		if err := os.WriteFile(path, respBody, 0644); err != nil {
			return fmt.Errorf("failed to write %s: %w", path, err)
		}
		_, err := fmt.Fprintf(e.out, "Wrote result to %s.\n", path)
		return err
	}

	doc, err := output.Decode(respBody)
	if err != nil {
		var decErr *output.DecodeError
		if errors.As(err, &decErr) {
			e.logger.Info("JSON decoding failed", "err", decErr.Err)
			fmt.Fprintln(e.out, string(respBody))
		}
		return err
	}
	if query, _ := fs.GetString(flagCliQuery); query != "" {
		doc, err = doc.Filter(query)
		if err != nil {
			return err
		}
	}

	format := output.FormatJSON
	if f := fs.Lookup(flagOutputAs); f != nil {
		format = output.Format(f.Value.String())
	}
	return output.NewFormatter(e.out, format, e.logger).Format(doc)
}

func httpMethod(method string) string {
	switch method {
	case "get":
		return http.MethodGet
	case "post":
		return http.MethodPost
	case "put":
		return http.MethodPut
	case "patch":
		return http.MethodPatch
	case "delete":
		return http.MethodDelete
	}
	return method
}

// redact hides the authorization header in traces.
func redact(h http.Header) http.Header {
	out := h.Clone()
	if out.Get("Authorization") != "" {
		out.Set("Authorization", "CwsAuth bearer=***")
	}
	return out
}
