// Package envy automatically exposes environment
// variables for all of your flags.
package envy

import (
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"
)

// Parse takes a prefix string and exposes environment variables
// for all flags in the default FlagSet (flag.CommandLine) in the
// form of PREFIX_FLAGNAME.  Call it before flag.Parse so that
// command line flags take precedence.
func Parse(p string) error {
	return Update(p, flag.CommandLine, os.LookupEnv)
}

// Name returns the environment variable for the named flag.
func Name(p, flagName string) string {
	envVar := fmt.Sprintf("%s_%s", p, strings.ToUpper(flagName))
	return strings.ReplaceAll(envVar, "-", "_")
}

// Update exposes each flag in fs as an upper case environment variable
// prefixed with p, read through lookup.  Any flag that was not explicitly
// set is updated to the variable's value, if set.  Values the flag rejects
// are reported together in the returned error.
func Update(p string, fs *flag.FlagSet, lookup func(string) (string, bool)) error {
	// Build a map of explicitly set flags.
	set := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		set[f.Name] = true
	})

	var errs []error
	fs.VisitAll(func(f *flag.Flag) {
		envVar := Name(p, f.Name)

		if val, ok := lookup(envVar); ok && val != "" && !set[f.Name] {
			if err := fs.Set(f.Name, val); err != nil {
				errs = append(errs, fmt.Errorf("invalid value %q for %s: %w", val, envVar, err))
			}
		}

		// Append the env var to the
		// Flag.Usage field.
		f.Usage = fmt.Sprintf("%s [%s]", f.Usage, envVar)
	})
	return errors.Join(errs...)
}
