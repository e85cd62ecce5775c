package cmds

import (
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/mattn/go-colorable"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"gopkg.in/yaml.v2"

	"github.com/monomirror/monomirror/pkg/config"
	"github.com/monomirror/monomirror/pkg/hearthstone"
	"github.com/monomirror/monomirror/pkg/logflags"
	"github.com/monomirror/monomirror/pkg/mirror"
	"github.com/monomirror/monomirror/pkg/terminal"
	"github.com/monomirror/monomirror/pkg/terminal/starbind"
	"github.com/monomirror/monomirror/pkg/version"
)

var (
	// log is whether to log debug statements.
	log bool
	// logOutput is a comma separated list of components that should produce debug output.
	logOutput string
	// logDest is the file path or file descriptor where logs should go.
	logDest string
	// configPath overrides the configuration file.
	configPath string
	// processName and assemblyName override the configuration.
	processName  string
	assemblyName string
	// initFile is the path to initialization file.
	initFile string

	// rootCommand is the root of the command tree.
	rootCommand *cobra.Command

	conf *config.Config

	// stdout is where the commands print their results.
	stdout io.Writer = colorable.NewColorableStdout()
)

const monomirrorCommandLongDesc = `Monomirror reads the managed object graph of a running Mono process.

It attaches to the target by name, finds the root domain through an export of
the main module and decodes the classes and static fields of an assembly
without stopping the target. Results of the game commands are printed as YAML.

The target is chosen with --process and the assembly with --assembly, both
default to the values of the configuration file.`

// New returns an initialized command tree.
func New() *cobra.Command {
	rootCommand = &cobra.Command{
		Use:   "monomirror",
		Short: "Monomirror reads the object graph of a Mono process.",
		Long:  monomirrorCommandLongDesc,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return setup()
		},
		SilenceUsage: true,
	}

	rootCommand.PersistentFlags().SetNormalizeFunc(normalizeFlagName)

	rootCommand.PersistentFlags().BoolVarP(&log, "log", "", false, "Enable logging.")
	rootCommand.PersistentFlags().StringVarP(&logOutput, "log-output", "", "", `Comma separated list of components that should produce debug output (see 'monomirror help log')`)
	rootCommand.PersistentFlags().StringVarP(&logDest, "log-dest", "", "", "Writes logs to the specified file or file descriptor (see 'monomirror help log').")
	rootCommand.PersistentFlags().StringVar(&configPath, "config", "", "Configuration file, instead of $HOME/.monomirror/config.yml.")
	rootCommand.PersistentFlags().StringVarP(&processName, "process", "p", "", "Image name of the target process.")
	rootCommand.PersistentFlags().StringVarP(&assemblyName, "assembly", "a", "", "Assembly whose classes are read.")

	rootCommand.AddCommand(&cobra.Command{
		Use:   "status",
		Short: "Attaches to the target and prints the outcome.",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(statusCmd(newMirror()))
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "assemblies",
		Short: "Lists the assemblies loaded in the root domain.",
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(run(func(m *mirror.Mirror) error {
				names, err := m.Assemblies()
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, strings.Join(names, "\n"))
				return nil
			}))
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "classes [prefix]",
		Short: "Lists the classes of the assembly.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			prefix := ""
			if len(args) > 0 {
				prefix = args[0]
			}
			os.Exit(run(func(m *mirror.Mirror) error {
				img, err := m.Root()
				if err != nil {
					return err
				}
				for _, name := range img.Complete(prefix) {
					fmt.Fprintln(stdout, name)
				}
				return nil
			}))
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "fields <class>",
		Short: "Lists the fields of a class and of its ancestors.",
		Args:  cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(run(func(m *mirror.Mirror) error {
				img, err := m.Root()
				if err != nil {
					return err
				}
				infos, err := starbind.ClassFields(img, args[0])
				if err != nil {
					return err
				}
				return printYAML(infos)
			}))
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "get <class> <field> [field...]",
		Short: "Prints the value of a static field, or of a field reached from it.",
		Args:  cobra.MinimumNArgs(2),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(run(func(m *mirror.Mirror) error {
				img, err := m.Root()
				if err != nil {
					return err
				}
				v, err := img.StaticValue(args[0], args[1])
				if err != nil {
					return err
				}
				v, err = v.Get(args[2:]...)
				if err != nil {
					return err
				}
				fmt.Fprintln(stdout, v)
				return nil
			}))
		},
	})

	rootCommand.AddCommand(queryCommand("collection", "Prints the card collection.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetCollection(m)
	}))
	rootCommand.AddCommand(queryCommand("decks", "Prints the decks.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetDecks(m)
	}))
	rootCommand.AddCommand(queryCommand("arena", "Prints the current arena run.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetArenaDeck(m)
	}))
	rootCommand.AddCommand(queryCommand("draft", "Prints the cards offered by the arena draft.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetArenaDraftChoices(m)
	}))
	rootCommand.AddCommand(queryCommand("match", "Prints the players of the current match.", func(m *mirror.Mirror) (interface{}, error) {
		return hearthstone.GetMatchInfo(m)
	}))
	rootCommand.AddCommand(queryCommand("gametype", "Prints the game type and the spectating state.", func(m *mirror.Mirror) (interface{}, error) {
		gt, err := hearthstone.GetGameType(m)
		if err != nil {
			return nil, err
		}
		spectating, err := hearthstone.IsSpectating(m)
		if err != nil {
			return nil, err
		}
		deck, err := hearthstone.GetSelectedDeckInMenu(m)
		if err != nil {
			return nil, err
		}
		return map[string]interface{}{"game-type": gt, "spectating": spectating, "selected-deck": deck}, nil
	}))

	rootCommand.AddCommand(&cobra.Command{
		Use:   "exports [regex]",
		Short: "Lists the exports of the main module of the target.",
		Args:  cobra.MaximumNArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runTerminalCommand("exports " + strings.Join(args, " ")))
		},
	})

	replCommand := &cobra.Command{
		Use:   "repl",
		Short: "Starts the interactive browser.",
		Long: `Starts the interactive browser.

The browser attaches lazily, on the first command reading the target. Type
'help' at the prompt for the list of commands.`,
		Run: replCmd,
	}
	replCommand.Flags().StringVar(&initFile, "init", "", "Init file, executed by the browser.")
	rootCommand.AddCommand(replCommand)

	rootCommand.AddCommand(&cobra.Command{
		Use:   "script <path>",
		Short: "Runs a starlark script or a file of browser commands.",
		Long: `Runs a starlark script or a file of browser commands.

Files with the .star extension are starlark scripts, their main function is
called if they define one. Other files list one browser command per line.`,
		Args: cobra.ExactArgs(1),
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(runTerminalCommand("source " + args[0]))
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Prints version.",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(stdout, "Monomirror\n%s\n", version.MonomirrorVersion)
			if log {
				fmt.Fprintln(stdout, version.BuildInfo())
			}
		},
	})

	rootCommand.AddCommand(&cobra.Command{
		Use:   "log",
		Short: "Help about logging flags.",
		Long: `Logging can be enabled by specifying the --log flag and using the
--log-output flag to select which components should produce logs.

The argument of --log-output must be a comma separated list of component
names selected from this list:

	memory		Log page cache misses and failed reads
	pe		Log parsing of the export directory
	bootstrap	Log the discovery of the root domain
	mono		Log loading of images and classes
	mirror		Log attaching, detaching and failed queries (default)
	repl		Log the interactive browser

Additionally --log-dest can be used to specify where the logs should be
written.
If the argument is a number it will be interpreted as a file descriptor,
otherwise as a file path.
`,
	})

	rootCommand.DisableAutoGenTag = true

	return rootCommand
}

// normalizeFlagName accepts '_' in place of '-' in flag names, so that
// --log_output is --log-output.
func normalizeFlagName(f *pflag.FlagSet, name string) pflag.NormalizedName {
	return pflag.NormalizedName(strings.ReplaceAll(name, "_", "-"))
}

// setup configures logging and loads the configuration.
func setup() error {
	if err := logflags.Setup(log, logOutput, logDest); err != nil {
		return err
	}
	var err error
	if configPath != "" {
		conf, err = config.LoadFile(configPath)
	} else {
		conf, err = config.LoadConfig()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v, using the default configuration\n", err)
		conf = config.Default()
	}
	if processName != "" {
		conf.ProcessName = processName
	}
	if assemblyName != "" {
		conf.AssemblyName = assemblyName
	}
	return nil
}

// mirrorConfig returns the session configuration described by conf.
func mirrorConfig(conf *config.Config) mirror.Config {
	cfg := mirror.DefaultConfig()
	cfg.ProcessName = conf.ProcessName
	cfg.AssemblyName = conf.AssemblyName
	cfg.RootDomainExport = conf.RootDomainExport
	cfg.ExportIndirect = conf.ExportIndirect
	if conf.CachePages > 0 {
		cfg.CachePages = conf.CachePages
	}
	cfg.Offsets = conf.Offsets
	return cfg
}

func newMirror() *mirror.Mirror {
	return mirror.New(mirrorConfig(conf))
}

func statusCmd(m *mirror.Mirror) int {
	defer m.Close()
	st := mirror.GetStatus(m)
	w := tabwriter.NewWriter(stdout, 0, 8, 1, ' ', 0)
	fmt.Fprintf(w, "status:\t%s\n", st.Kind)
	fmt.Fprintf(w, "process:\t%s\n", m.Config().ProcessName)
	switch st.Kind {
	case mirror.StatusOK:
		fmt.Fprintf(w, "pid:\t%d\n", m.Pid())
	case mirror.StatusError:
		fmt.Fprintf(w, "error:\t%v\n", st.Err)
	}
	w.Flush()
	if st.Kind != mirror.StatusOK {
		return 1
	}
	return 0
}

// run calls fn with a new session and returns the exit status.
func run(fn func(m *mirror.Mirror) error) int {
	defer logflags.Close()
	m := newMirror()
	defer m.Close()
	if err := fn(m); err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	return 0
}

// queryCommand returns a subcommand printing the result of q as YAML.
func queryCommand(use, short string, q func(m *mirror.Mirror) (interface{}, error)) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: short,
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, args []string) {
			os.Exit(run(func(m *mirror.Mirror) error {
				v, err := q(m)
				if err != nil {
					return err
				}
				return printYAML(v)
			}))
		},
	}
}

func printYAML(v interface{}) error {
	buf, err := yaml.Marshal(v)
	if err != nil {
		return err
	}
	_, err = stdout.Write(buf)
	return err
}

func runTerminalCommand(cmdstr string) int {
	return run(func(m *mirror.Mirror) error {
		err := terminal.Execute(m, conf, cmdstr)
		var ere terminal.ExitRequestError
		if errors.As(err, &ere) {
			return nil
		}
		return err
	})
}

func replCmd(cmd *cobra.Command, args []string) {
	status := func() int {
		defer logflags.Close()
		term := terminal.New(newMirror(), conf)
		term.InitFile = initFile
		status, err := term.Run()
		if err != nil {
			fmt.Fprintln(os.Stderr, err)
		}
		return status
	}()
	os.Exit(status)
}
