// Package composer builds Composer invocations and edits composer.json.
package composer

// Phase is the Composer command an invocation runs.
type Phase string

const (
	PhaseCreate  Phase = "create"
	PhaseInstall Phase = "install"
	PhaseRequire Phase = "require"
)

// DefaultOptions are used when the user passes no Composer options.
var DefaultOptions = []string{"--prefer-source"}

// Invocation is one Composer command.
type Invocation struct {
	Phase Phase
	// Args are the flags for this phase, deduplicated.
	Args []string
	// Dev marks a require as a development dependency.
	Dev bool
	// Target is the package argument: "vendor/name:constraint" for create,
	// the module for require, empty for install.
	Target string
}

// CommandArgs renders the full argument list, e.g.
// ["require", "silverstripe/frameworktest", "--no-interaction", "--no-audit", "--dev"].
func (i Invocation) CommandArgs() []string {
	out := []string{string(i.Phase)}
	switch i.Phase {
	case PhaseCreate:
		out = append(out, i.Args...)
		out = append(out, i.Target)
	case PhaseRequire:
		out = append(out, i.Target)
		out = append(out, i.Args...)
		if i.Dev {
			out = append(out, "--dev")
		}
	default:
		out = append(out, i.Args...)
	}
	return out
}

// ArgsBuilder computes Composer arguments for one provisioning run.
type ArgsBuilder struct {
	options      []string
	deferInstall bool
	base         []string
}

// NewArgsBuilder creates a builder for the user's Composer options.
// deferInstall adds --no-install to the create phase so pull request
// dependencies can be declared before the first install.
func NewArgsBuilder(options []string, deferInstall bool) *ArgsBuilder {
	return &ArgsBuilder{options: options, deferInstall: deferInstall}
}

// baseArgs is computed once per builder.
func (b *ArgsBuilder) baseArgs() []string {
	if b.base == nil {
		b.base = append([]string{"--no-interaction"}, b.options...)
	}
	return b.base
}

// Args returns the flags for phase.
func (b *ArgsBuilder) Args(phase Phase) []string {
	base := b.baseArgs()
	args := make([]string, 0, len(base)+2)
	args = append(args, base...)

	if phase == PhaseCreate && b.deferInstall {
		args = append(args, "--no-install")
	}
	// composer install rejects --no-audit
	if phase != PhaseInstall {
		args = append(args, "--no-audit")
	}
	return dedup(args)
}

// HasOption reports whether the user passed opt.
func (b *ArgsBuilder) HasOption(opt string) bool {
	for _, o := range b.options {
		if o == opt {
			return true
		}
	}
	return false
}

// Create builds the create-project invocation for recipe at constraint.
func (b *ArgsBuilder) Create(recipe, constraint string) Invocation {
	return Invocation{Phase: PhaseCreate, Args: b.Args(PhaseCreate), Target: recipe + ":" + constraint}
}

// Install builds a full install invocation.
func (b *ArgsBuilder) Install() Invocation {
	return Invocation{Phase: PhaseInstall, Args: b.Args(PhaseInstall)}
}

// Require builds a require invocation for module.
func (b *ArgsBuilder) Require(module string, dev bool) Invocation {
	return Invocation{Phase: PhaseRequire, Args: b.Args(PhaseRequire), Dev: dev, Target: module}
}

// dedup drops repeated arguments, keeping the first occurrence.
func dedup(args []string) []string {
	seen := make(map[string]bool, len(args))
	out := args[:0]
	for _, a := range args {
		if seen[a] {
			continue
		}
		seen[a] = true
		out = append(out, a)
	}
	return out
}
