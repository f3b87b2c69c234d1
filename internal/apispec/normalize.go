package apispec

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"github.com/charmbracelet/log"
)

// supportedMethods lists the HTTP verbs that become commands, in the order
// operations of one path are visited.
var supportedMethods = []string{"get", "post", "put", "patch", "delete"}

// internalHeaders are transport concerns that the CLI sets itself.
var internalHeaders = []string{
	"Authorization",
	"Accept",
	"Accept-Charset",
	"Citrix-TransactionId",
	"X-ActionName",
}

var nonLetters = regexp.MustCompile(`[^a-zA-Z ]+`)

// Normalizer turns a raw cached document into a ServiceSpec.
type Normalizer struct {
	logger *log.Logger
}

// NewNormalizer creates a normalizer that reports dropped operations and
// parameters to logger.
func NewNormalizer(logger *log.Logger) *Normalizer {
	if logger == nil {
		logger = log.Default()
	}
	return &Normalizer{logger: logger}
}

// Normalize prunes unusable operations from doc, resolves references and
// flattens parameters. doc is modified in place: unsupported methods, empty
// paths and the shared definitions/parameters sections are removed.
func (n *Normalizer) Normalize(groupKey string, doc Document) (*ServiceSpec, error) {
	host, basePath, err := doc.Base()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", groupKey, err)
	}

	svc := NewServiceStub(groupKey, doc.Title())
	svc.Description = doc.Description()
	svc.BaseHost = host
	svc.BasePath = basePath

	resolver := newRefResolver(doc)
	seen := make(map[string]bool)
	paths := doc.Paths()

	for _, path := range sortedKeys(paths) {
		item, ok := paths[path].(map[string]any)
		if !ok {
			delete(paths, path)
			continue
		}
		for method := range item {
			if !contains(supportedMethods, method) {
				delete(item, method)
			}
		}
		for _, method := range supportedMethods {
			raw, ok := item[method].(map[string]any)
			if !ok {
				continue
			}
			op, keep := n.operation(svc, resolver, seen, path, method, raw)
			if !keep {
				delete(item, method)
				continue
			}
			svc.addOperation(op)
		}
		if len(item) == 0 {
			delete(paths, path)
		}
	}

	delete(doc, "definitions")
	delete(doc, "parameters")
	return svc, nil
}

// operationID returns the identifier for an operation, synthesizing one
// from the summary when the operation declares none.
func operationID(raw map[string]any) (string, bool) {
	if id, ok := raw["operationId"].(string); ok && id != "" {
		return id, true
	}
	summary, ok := raw["summary"].(string)
	if !ok {
		return "", false
	}
	id := strings.TrimSpace(nonLetters.ReplaceAllString(summary, ""))
	return id, id != ""
}

// unsupportedCredential reports whether the summary marks the operation as
// usable only with a service key.
func unsupportedCredential(summary string) bool {
	return strings.Contains(summary, "[ServiceKey]") && !strings.Contains(summary, "[BearerToken]")
}

// uniqueID appends the smallest counter >= 2 that makes id unused.
func uniqueID(id string, seen map[string]bool) string {
	if !seen[id] {
		return id
	}
	counter := 2
	for seen[id+strconv.Itoa(counter)] {
		counter++
	}
	return id + strconv.Itoa(counter)
}

func (n *Normalizer) operation(svc *ServiceSpec, resolver *refResolver, seen map[string]bool, path, method string, raw map[string]any) (*Operation, bool) {
	id, ok := operationID(raw)
	if !ok {
		n.logger.Debug("skipping operation without operationId", "service", svc.GroupKey, "path", path, "method", method)
		return nil, false
	}
	summary, _ := raw["summary"].(string)
	if strings.Contains(strings.ToLower(id), "ping") || unsupportedCredential(summary) {
		return nil, false
	}

	id = uniqueID(strings.ReplaceAll(id, " ", "_"), seen)
	seen[id] = true
	raw["operationId"] = id

	op := &Operation{
		ID:          id,
		Method:      method,
		URLTemplate: "https://" + svc.BaseHost + svc.BasePath + path,
		Summary:     summary,
	}

	rawParams, _ := raw["parameters"].([]any)
	kept := make([]any, 0, len(rawParams))
	for _, rp := range rawParams {
		param, ok := rp.(map[string]any)
		if !ok {
			continue
		}
		resolved, err := resolver.Resolve(param)
		if err != nil {
			n.logger.Warn("dropping parameter", "service", svc.GroupKey, "operation", id, "err", err)
			continue
		}
		if ignoreParameter(resolved) {
			continue
		}
		kept = append(kept, resolved)
		op.Parameters = append(op.Parameters, n.flatten(svc.GroupKey, id, resolved)...)
	}
	if rawParams != nil {
		raw["parameters"] = kept
	}
	return op, true
}

// ignoreParameter reports parameters that must never be user settable.
func ignoreParameter(param map[string]any) bool {
	in, ok := param["in"].(string)
	if !ok {
		return true
	}
	if in != string(LocationHeader) {
		return false
	}
	name, _ := param["name"].(string)
	for _, h := range internalHeaders {
		if strings.EqualFold(h, name) {
			return true
		}
	}
	return false
}
