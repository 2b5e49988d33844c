// Package whitelist holds the static table of system commands the daemon is
// allowed to spawn, and the validators that gate every argument before it
// reaches exec. Nothing in this package is ever derived from request data.
package whitelist

import (
	"fmt"
	"regexp"

	"github.com/dplaneos/dplaned/internal/shared"
)

// Command represents a whitelisted system command.
type Command struct {
	Name        string
	Path        string
	AllowedArgs []string         // literal argument prefix, matched index by index
	ArgPatterns []*regexp.Regexp // ordered per-position patterns for the remaining args
	Description string
}

// specialValidator handles command shapes the literal+pattern scheme cannot
// express (e.g. an optional token followed by a variable-length device list).
type specialValidator func(args []string) error

// Registry is the immutable command table. Construct once at startup.
type Registry struct {
	commands map[string]Command
	special  map[string]specialValidator
}

// NewRegistry builds a registry from explicit definitions. Most callers want
// Default instead.
func NewRegistry(commands []Command) *Registry {
	r := &Registry{
		commands: make(map[string]Command, len(commands)),
		special:  make(map[string]specialValidator),
	}
	for _, cmd := range commands {
		r.commands[cmd.Name] = cmd
	}
	return r
}

// Lookup returns the definition for a command key.
func (r *Registry) Lookup(name string) (Command, bool) {
	cmd, ok := r.commands[name]
	return cmd, ok
}

// Validate checks whether (name, args) is allowed. An unknown name is always
// rejected. When the definition carries a literal prefix, args must start with
// it exactly; the remaining args are matched one-to-one against the ordered
// patterns. Any count mismatch is a rejection.
func (r *Registry) Validate(name string, args []string) error {
	cmd, exists := r.commands[name]
	if !exists {
		return fmt.Errorf("%w: %s", shared.ErrNotWhitelisted, name)
	}

	if validate, ok := r.special[name]; ok {
		return validate(args)
	}

	if len(args) < len(cmd.AllowedArgs) {
		return fmt.Errorf("%w: insufficient arguments for %s", shared.ErrValidation, name)
	}
	for i, allowed := range cmd.AllowedArgs {
		if args[i] != allowed {
			return fmt.Errorf("%w: argument %d of %s: expected %q, got %q",
				shared.ErrValidation, i, name, allowed, args[i])
		}
	}

	remaining := args[len(cmd.AllowedArgs):]
	if len(remaining) != len(cmd.ArgPatterns) {
		return fmt.Errorf("%w: wrong argument count for %s: expected %d, got %d",
			shared.ErrValidation, name, len(cmd.ArgPatterns), len(remaining))
	}
	for i, pattern := range cmd.ArgPatterns {
		if !pattern.MatchString(remaining[i]) {
			return fmt.Errorf("%w: argument %q does not match allowed pattern for %s",
				shared.ErrValidation, remaining[i], name)
		}
	}
	return nil
}

var raidTypes = map[string]bool{
	"mirror": true,
	"raidz":  true,
	"raidz1": true,
	"raidz2": true,
	"raidz3": true,
}

var flagToken = regexp.MustCompile(`^-[a-zA-Z]$`)

// validateZpoolCreate validates zpool create argument lists of the form
// create [-flag]... [raidtype] poolname device [device...].
// The fixed literal+pattern scheme cannot express the optional raid token
// followed by a variable-length device list.
func validateZpoolCreate(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("%w: zpool create requires at least: create poolname device", shared.ErrValidation)
	}
	if args[0] != "create" {
		return fmt.Errorf("%w: first argument must be 'create'", shared.ErrValidation)
	}

	i := 1
	for i < len(args) && flagToken.MatchString(args[i]) {
		i++
	}
	if i < len(args) && raidTypes[args[i]] {
		i++
	}
	if i >= len(args) {
		return fmt.Errorf("%w: missing pool name", shared.ErrValidation)
	}
	if err := ValidatePoolName(args[i]); err != nil {
		return err
	}
	i++
	// The raid-type token may also follow the pool name (zpool syntax).
	if i < len(args) && raidTypes[args[i]] {
		i++
	}
	if i >= len(args) {
		return fmt.Errorf("%w: at least one device is required", shared.ErrValidation)
	}
	for ; i < len(args); i++ {
		if err := ValidateDevicePath(args[i]); err != nil {
			return err
		}
	}
	return nil
}
