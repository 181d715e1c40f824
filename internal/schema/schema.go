package schema

import (
	"fmt"
	"slices"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	clierr "github.com/mangrovedao/vault-console/internal/errors"
)

// AnnotationInteractive marks commands that prompt on the terminal.
const AnnotationInteractive = "interactive"

// Command describes one command for scripts that drive the CLI. Name is
// the path accepted by --enable-commands.
type Command struct {
	Name        string    `json:"name"`
	Use         string    `json:"use"`
	Short       string    `json:"short"`
	Interactive bool      `json:"interactive,omitempty"`
	Flags       []Flag    `json:"flags,omitempty"`
	Global      []Flag    `json:"global_flags,omitempty"`
	Subcommands []Command `json:"subcommands,omitempty"`
}

type Flag struct {
	Name    string `json:"name"`
	Type    string `json:"type"`
	Usage   string `json:"usage"`
	Default string `json:"default,omitempty"`
}

// Build describes the command at path below root, or root itself when
// path is empty. Global flags are listed once, on the described command.
func Build(root *cobra.Command, path string) (Command, error) {
	cmd := root
	for _, p := range strings.Fields(path) {
		next := slices.IndexFunc(cmd.Commands(), func(c *cobra.Command) bool {
			return c.Name() == p || slices.Contains(c.Aliases, p)
		})
		if next < 0 {
			return Command{}, clierr.New(clierr.CodeUsage, fmt.Sprintf("command not found: %s", path))
		}
		cmd = cmd.Commands()[next]
	}
	out := describe(root, cmd)
	out.Global = flags(root.PersistentFlags())
	return out, nil
}

func describe(root, cmd *cobra.Command) Command {
	c := Command{
		Name:        name(root, cmd),
		Use:         cmd.Use,
		Short:       cmd.Short,
		Interactive: cmd.Annotations[AnnotationInteractive] == "true",
		Flags:       flags(cmd.LocalNonPersistentFlags()),
	}
	for _, sub := range cmd.Commands() {
		if sub.Hidden || sub.Name() == "help" || sub.Name() == "completion" {
			continue
		}
		c.Subcommands = append(c.Subcommands, describe(root, sub))
	}
	return c
}

func name(root, cmd *cobra.Command) string {
	if cmd == root {
		return ""
	}
	return strings.TrimSpace(strings.TrimPrefix(cmd.CommandPath(), root.Name()))
}

func flags(set *pflag.FlagSet) []Flag {
	var out []Flag
	set.VisitAll(func(f *pflag.Flag) {
		if f.Hidden {
			return
		}
		out = append(out, Flag{Name: f.Name, Type: f.Value.Type(), Usage: f.Usage, Default: f.DefValue})
	})
	return out
}
