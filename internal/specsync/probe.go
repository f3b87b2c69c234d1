package specsync

import (
	"encoding/json"
	"fmt"

	"cxcli/internal/apispec"

	"github.com/pb33f/libopenapi"
)

// probeVersion parses a merged group document and returns the declared
// OpenAPI or Swagger version.
func probeVersion(doc apispec.Document) (string, error) {
	data, err := json.Marshal(doc)
	if err != nil {
		return "", fmt.Errorf("encoding document: %w", err)
	}
	parsed, err := libopenapi.NewDocument(data)
	if err != nil {
		return "", fmt.Errorf("parsing OpenAPI document: %w", err)
	}
	return parsed.GetVersion(), nil
}
