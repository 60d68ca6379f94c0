package cli

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

var envNameReplacer = strings.NewReplacer("-", "_", ".", "_")

// envName returns the variable that sets the flag named name,
// e.g. "skip-tags" is read from ORGZ_SKIP_TAGS.
func envName(name string) string {
	return strings.ToUpper(cmdName + "_" + envNameReplacer.Replace(name))
}

// envBinder fills unset flags from the environment.
type envBinder struct {
	lookup func(string) (string, bool)
	errs   []error
}

// bindEnvVars applies environment variables to every flag of cmd and its
// subcommands. Flags given on the command line keep their value. Values that
// do not parse are logged and ignored.
func bindEnvVars(cmd *cobra.Command) {
	b := &envBinder{lookup: os.LookupEnv}
	b.walk(cmd)

	if err := errors.Join(b.errs...); err != nil {
		slog.Warn("ignoring environment variables", slog.Any("err", err))
	}
}

func (b *envBinder) walk(cmd *cobra.Command) {
	cmd.Flags().VisitAll(b.bind)
	cmd.PersistentFlags().VisitAll(b.bind)

	for _, sub := range cmd.Commands() {
		b.walk(sub)
	}
}

func (b *envBinder) bind(f *pflag.Flag) {
	name := envName(f.Name)

	if !strings.Contains(f.Usage, "$"+name) {
		f.Usage += " ($" + name + ")"
	}

	if f.Changed {
		return
	}

	value, ok := b.lookup(name)
	if !ok {
		return
	}

	err := f.Value.Set(value)
	if err != nil {
		b.errs = append(b.errs, fmt.Errorf("$%s=%q: %w", name, value, err))
	}
}
