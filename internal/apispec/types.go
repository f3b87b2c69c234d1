package apispec

import "strings"

// Location is where a parameter travels in the HTTP request.
type Location string

const (
	LocationPath     Location = "path"
	LocationQuery    Location = "query"
	LocationHeader   Location = "header"
	LocationBody     Location = "body"
	LocationFormData Location = "formData"
)

// ValueType is the scalar or container type of a parameter.
type ValueType string

const (
	TypeString  ValueType = "string"
	TypeInteger ValueType = "integer"
	TypeNumber  ValueType = "number"
	TypeBoolean ValueType = "boolean"
	TypeArray   ValueType = "array"
	TypeObject  ValueType = "object"
	TypeFile    ValueType = "file"
)

// ParameterSpec is one user-settable input of an operation. Object-typed
// parameters carry their flattened properties in Nested; an object without
// declared properties is represented as TypeString.
type ParameterSpec struct {
	Name        string
	FlagName    string // stable flag identifier, e.g. "limit" or "filter-name"
	Location    Location
	Type        ValueType
	Description string
	Required    bool
	Enum        []string
	Nested      []*ParameterSpec
}

// Operation is one invocable endpoint of a service.
type Operation struct {
	ID          string
	Method      string
	URLTemplate string
	Summary     string
	Parameters  []*ParameterSpec
}

// ServiceSpec is the normalized form of one cached spec group.
type ServiceSpec struct {
	GroupKey    string
	Name        string
	Component   string
	Title       string
	Description string
	BaseHost    string
	BasePath    string
	Operations  []*Operation

	byID map[string]*Operation
}

// Operation returns the operation with the given id.
func (s *ServiceSpec) Operation(id string) (*Operation, bool) {
	op, ok := s.byID[id]
	return op, ok
}

func (s *ServiceSpec) addOperation(op *Operation) {
	if s.byID == nil {
		s.byID = make(map[string]*Operation)
	}
	s.Operations = append(s.Operations, op)
	s.byID[op.ID] = op
}

// HelpText is the description of the service if it has one, else its title.
func (s *ServiceSpec) HelpText() string {
	if strings.TrimSpace(s.Description) != "" {
		return s.Description
	}
	return s.Title
}

// SplitGroupKey splits a cache group key into its component namespace and
// service name. Keys without an underscore have no component.
func SplitGroupKey(key string) (component, name string) {
	parts := strings.Split(key, "_")
	if len(parts) < 2 {
		return "", key
	}
	return parts[0], parts[1]
}

// NewServiceStub returns a service that only knows its title, used for
// services whose full body is not needed by the current invocation.
func NewServiceStub(groupKey, title string) *ServiceSpec {
	component, name := SplitGroupKey(groupKey)
	return &ServiceSpec{
		GroupKey:  groupKey,
		Name:      name,
		Component: component,
		Title:     title,
	}
}
