package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
)

const usageLine = "Usage: simple-blog-generator <path_to_config_file>"

// errUsage is returned after the usage message has been printed.
var errUsage = errors.New("no config file supplied")

type cliOptions struct {
	logLevel    string
	logFormat   string
	clean       bool
	printSchema bool
}

func main() {
	os.Exit(run(context.Background(), os.Args[1:], os.Stdout, os.Stderr))
}

// run executes the command line and returns the process exit status.
func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	log := logrus.New()
	log.SetOutput(stderr)

	cmd := newRootCmd(stdout, log)
	cmd.SetArgs(args)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	if err := cmd.ExecuteContext(ctx); err != nil {
		if !errors.Is(err, errUsage) {
			log.WithError(err).Error("blog generation failed")
		}
		return 1
	}
	return 0
}

func newRootCmd(stdout io.Writer, log *logrus.Logger) *cobra.Command {
	var opts cliOptions

	cmd := &cobra.Command{
		Use:   "simple-blog-generator <path_to_config_file>",
		Short: "Generate a static blog from a directory of Markdown posts",
		Long: `simple-blog-generator reads a JSON configuration file (YAML and TOML are
accepted by extension) and renders the Markdown posts of its content
directory into a static HTML site.

A config path starting with "-" is read as a flag; pass it after "--".`,
		SilenceUsage:  true,
		SilenceErrors: true,
		Args: func(cmd *cobra.Command, args []string) error {
			if opts.printSchema {
				return nil
			}
			if len(args) != 1 {
				fmt.Fprintln(stdout, "Error: No config file supplied")
				fmt.Fprintln(stdout, usageLine)
				return errUsage
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := configureLogger(log, opts); err != nil {
				return err
			}

			if opts.printSchema {
				schema, err := Schema()
				if err != nil {
					return fmt.Errorf("generating config schema: %w", err)
				}
				fmt.Fprintln(stdout, string(schema))
				return nil
			}

			cfg, err := LoadConfig(args[0])
			if err != nil {
				return err
			}
			blog, err := NewBlog(cfg, WithLogger{Logger: log})
			if err != nil {
				return fmt.Errorf("creating blog generator: %w", err)
			}

			if opts.clean {
				return blog.Clean()
			}
			return blog.Generate(cmd.Context())
		},
	}
	bindFlags(cmd.Flags(), &opts)
	return cmd
}

func bindFlags(flags *pflag.FlagSet, opts *cliOptions) {
	flags.StringVar(&opts.logLevel, "log-level", "info", "Log level: debug, info, warn or error.")
	flags.StringVar(&opts.logFormat, "log-format", "text", "Log format: text or json.")
	flags.BoolVar(&opts.clean, "clean", false, "Only clear the output directory.")
	flags.BoolVar(&opts.printSchema, "print-schema", false, "Print the JSON Schema of the config file and exit.")
}

func configureLogger(log *logrus.Logger, opts cliOptions) error {
	level, err := logrus.ParseLevel(opts.logLevel)
	if err != nil {
		return err
	}
	log.SetLevel(level)

	switch opts.logFormat {
	case "json":
		log.SetFormatter(&logrus.JSONFormatter{})
	case "text":
		log.SetFormatter(&logrus.TextFormatter{
			DisableColors: !isTerminal(log.Out),
			FullTimestamp: true,
		})
	default:
		return fmt.Errorf("unknown log format %q", opts.logFormat)
	}
	return nil
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd())
}
