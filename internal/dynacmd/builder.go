package dynacmd

import (
	"strings"

	"cxcli/internal/apispec"
	"cxcli/internal/manifest"
	"cxcli/internal/output"

	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
)

// componentHelp names the multi-component namespaces.
var componentHelp = map[string]string{
	"adm": "Citrix ADM Service",
}

// customerFlags receive the caller's customer id as default.
var customerFlags = []string{"customer", "customerid", "citrix-customerid"}

// Builder builds Cobra commands from a manifest
type Builder struct {
	manifest   *manifest.Manifest
	executor   *Executor
	customerID string
	logger     *log.Logger
}

// NewBuilder creates a new command builder. customerID, when known, is
// offered as default for customer id parameters.
func NewBuilder(m *manifest.Manifest, executor *Executor, customerID string, logger *log.Logger) *Builder {
	if logger == nil {
		logger = log.Default()
	}
	return &Builder{
		manifest:   m,
		executor:   executor,
		customerID: customerID,
		logger:     logger,
	}
}

// BuildCommands generates one command per service, with component
// namespaces for multi-component services.
func (b *Builder) BuildCommands() []*cobra.Command {
	parents := make(map[string]*cobra.Command)
	var topLevel []*cobra.Command

	for _, svc := range b.manifest.Services {
		cmd := b.buildServiceCommand(svc)
		if svc.Component == "" {
			if _, ok := parents[svc.Name]; ok {
				b.logger.Warn("duplicate service name, skipping", "service", svc.GroupKey)
				continue
			}
			parents[svc.Name] = cmd
			topLevel = append(topLevel, cmd)
			continue
		}
		ns, ok := parents[svc.Component]
		if !ok {
			help := componentHelp[svc.Component]
			if help == "" {
				help = svc.Component
			}
			ns = &cobra.Command{
				Use:   svc.Component,
				Short: help,
			}
			parents[svc.Component] = ns
			topLevel = append(topLevel, ns)
		}
		ns.AddCommand(cmd)
	}
	return topLevel
}

func firstLine(s string) string {
	s = strings.TrimSpace(s)
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		return strings.TrimSpace(s[:i])
	}
	return s
}

func (b *Builder) buildServiceCommand(svc *apispec.ServiceSpec) *cobra.Command {
	help := svc.HelpText()
	cmd := &cobra.Command{
		Use:   svc.Name,
		Short: firstLine(help),
		Long:  help,
	}
	for _, op := range svc.Operations {
		cmd.AddCommand(b.buildLeafCommand(svc, op))
	}
	return cmd
}

func (b *Builder) buildLeafCommand(svc *apispec.ServiceSpec, op *apispec.Operation) *cobra.Command {
	cmd := &cobra.Command{
		Use:   op.ID,
		Short: firstLine(op.Summary),
		Long:  op.Summary,
		Args:  cobra.NoArgs,
		RunE: func(c *cobra.Command, args []string) error {
			return b.executor.Execute(c, op)
		},
	}

	addOutputFlags(cmd)
	for _, ps := range op.Parameters {
		if len(ps.Nested) > 0 {
			for _, nested := range ps.Nested {
				b.addParameterFlag(cmd, svc, op, nested)
			}
			continue
		}
		b.addParameterFlag(cmd, svc, op, ps)
	}
	return cmd
}

func addOutputFlags(cmd *cobra.Command) {
	format := newEnumValue(output.Formats, string(output.FormatJSON))
	format.fold = true
	cmd.Flags().Var(format, flagOutputAs, "Try presenting the result in the specified format ("+strings.Join(output.Formats, ", ")+")")
	cmd.Flags().String(flagOutputBinary, "", "Store the result at the provided path")
	cmd.Flags().String(flagCliQuery, "", "Filter the result using JMESPath (See https://jmespath.org/tutorial.html)")
	cmd.MarkFlagsMutuallyExclusive(flagOutputAs, flagOutputBinary)
}

// defaultFor returns the injected default of a parameter, or "".
func (b *Builder) defaultFor(ps *apispec.ParameterSpec) string {
	switch ps.Type {
	case apispec.TypeString, apispec.TypeInteger, apispec.TypeNumber, apispec.TypeFile:
	default:
		return ""
	}
	name := strings.ToLower(ps.FlagName)
	for _, f := range customerFlags {
		if name == f {
			return b.customerID
		}
	}
	if ps.FlagName == "isCloud" {
		return "true"
	}
	return ""
}

func (b *Builder) addParameterFlag(cmd *cobra.Command, svc *apispec.ServiceSpec, op *apispec.Operation, ps *apispec.ParameterSpec) {
	fs := cmd.Flags()
	name := ps.FlagName
	if fs.Lookup(name) != nil {
		b.logger.Warn("flag already registered, skipping parameter", "service", svc.GroupKey, "operation", op.ID, "flag", name)
		return
	}

	def := b.defaultFor(ps)
	switch {
	case ps.Type == apispec.TypeBoolean:
		fs.Bool(name, false, ps.Description)
		return
	case ps.Type == apispec.TypeArray:
		fs.StringArray(name, nil, ps.Description)
	case len(ps.Enum) > 0:
		fs.Var(newEnumValue(ps.Enum, def), name, ps.Description+" (choices: "+strings.Join(ps.Enum, ", ")+")")
	case ps.Type == apispec.TypeInteger && def == "":
		fs.Int64(name, 0, ps.Description)
	case ps.Type == apispec.TypeNumber && def == "":
		fs.Float64(name, 0, ps.Description)
	default:
		fs.String(name, def, ps.Description)
	}

	if ps.Required && def == "" {
		_ = cmd.MarkFlagRequired(name)
	}
}
