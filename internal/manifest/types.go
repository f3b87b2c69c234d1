package manifest

import "cxcli/internal/apispec"

// Manifest is the set of services the CLI exposes. Services named on the
// command line are fully normalized; all others are title-only stubs.
type Manifest struct {
	Services []*apispec.ServiceSpec
}

// Service returns the service with the given group key.
func (m *Manifest) Service(groupKey string) (*apispec.ServiceSpec, bool) {
	for _, svc := range m.Services {
		if svc.GroupKey == groupKey {
			return svc, true
		}
	}
	return nil, false
}
