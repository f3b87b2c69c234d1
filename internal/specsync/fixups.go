package specsync

import (
	"net/url"

	"cxcli/internal/apispec"
)

// Fixup patches a fetched fragment whose upstream spec is known to be
// incomplete.
type Fixup struct {
	Match string // catalog name the fixup applies to
	Apply func(doc apispec.Document)
}

func pathParam(name string) map[string]any {
	return map[string]any{"name": name, "in": "path", "required": "true"}
}

// fixups holds the per-service patches applied before merging.
var fixups = []Fixup{
	{Match: "microapps", Apply: appendPathParams("customerid", "geo")},
	{Match: "reportingapi", Apply: appendPathParams("customerid")},
	{Match: "wem", Apply: appendPathParams("api")},
}

// appendPathParams adds the named path parameters to every operation that
// already declares a parameter list.
func appendPathParams(names ...string) func(apispec.Document) {
	return func(doc apispec.Document) {
		for _, item := range doc.Paths() {
			methods, ok := item.(map[string]any)
			if !ok {
				continue
			}
			for _, op := range methods {
				opMap, ok := op.(map[string]any)
				if !ok {
					continue
				}
				params, ok := opMap["parameters"].([]any)
				if !ok {
					continue
				}
				for _, name := range names {
					params = append(params, pathParam(name))
				}
				opMap["parameters"] = params
			}
		}
	}
}

// applyFixups runs the fixups registered for name.
func applyFixups(name string, doc apispec.Document) {
	for _, f := range fixups {
		if f.Match == name {
			f.Apply(doc)
		}
	}
}

// fixHost sets host to the authority of source when the document declares
// no host of its own. pin forces the override.
func fixHost(doc apispec.Document, source string, pin bool) {
	if !pin {
		if _, ok := doc["host"]; ok {
			return
		}
		if _, ok := doc["servers"]; ok {
			return
		}
	}
	u, err := url.Parse(source)
	if err != nil || u.Host == "" {
		return
	}
	doc["host"] = u.Host
}
