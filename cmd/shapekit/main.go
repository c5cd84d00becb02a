package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"reflect"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"go.uber.org/zap"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"github.com/wippyai/shapekit/partial"
	"github.com/wippyai/shapekit/script"
	"github.com/wippyai/shapekit/witshape"
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "shapekit",
		Short:         "Build values of WIT-style types from op scripts",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.CompletionOptions.DisableDefaultCmd = true
	root.AddCommand(replayCmd(), describeCmd())
	return root
}

type replayFlags struct {
	file        string
	format      string
	deferred    bool
	verbose     bool
	interactive bool
	watch       bool
	strictKeys  bool
	noDefaults  bool
}

func replayCmd() *cobra.Command {
	var f replayFlags
	env, envErr := loadEnv()
	cmd := &cobra.Command{
		Use:   "replay -f <doc.yaml>",
		Short: "Replay a document's ops and print the finished value",
		Args:  cobra.NoArgs,
		PreRunE: func(*cobra.Command, []string) error {
			return envErr
		},
		RunE: func(cmd *cobra.Command, _ []string) error {
			if f.watch {
				ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
				defer stop()
				out := cmd.OutOrStdout()
				return watch(ctx, out, f.file, func() error { return runReplay(out, f) })
			}
			return runReplay(cmd.OutOrStdout(), f)
		},
	}
	flags := cmd.Flags()
	addFileFlag(flags, &f.file)
	flags.StringVar(&f.format, "format", env.Format, "Output format: yaml, json or go (env SHAPEKIT_FORMAT)")
	flags.BoolVar(&f.deferred, "deferred", false, "Force deferred mode")
	flags.BoolVarP(&f.verbose, "verbose", "v", env.Verbose, "Log builder operations to stderr (env SHAPEKIT_VERBOSE)")
	flags.BoolVarP(&f.interactive, "interactive", "i", false, "Type ops into a console instead of replaying the document")
	flags.BoolVarP(&f.watch, "watch", "w", false, "Replay again whenever the document changes")
	flags.BoolVar(&f.strictKeys, "strict-keys", env.StrictKeys, "Fail on duplicate map keys and set members (env SHAPEKIT_STRICT_KEYS)")
	flags.BoolVar(&f.noDefaults, "no-defaults", false, "Do not fill optional fields implicitly")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}

func addFileFlag(fs *pflag.FlagSet, file *string) {
	fs.StringVarP(file, "file", "f", "", "Path to the YAML document")
}

func runReplay(out io.Writer, f replayFlags) error {
	if f.verbose {
		logger, err := zap.NewDevelopment()
		if err != nil {
			return fmt.Errorf("create logger: %w", err)
		}
		defer func() { _ = logger.Sync() }()
		partial.SetLogger(logger.Named("partial"))
		script.SetLogger(logger.Named("script"))
	}

	doc, err := script.LoadFile(f.file)
	if err != nil {
		return err
	}
	opts, err := doc.Options()
	if err != nil {
		return err
	}
	if f.deferred {
		opts.Mode = partial.Deferred
	}
	if f.strictKeys {
		opts.DuplicateKeys = partial.DuplicateKeysError
	}
	opts.NoImplicitDefaults = f.noDefaults

	g := witshape.New(nil)
	if f.interactive {
		if !term.IsTerminal(int(os.Stdin.Fd())) {
			return fmt.Errorf("interactive mode needs a terminal")
		}
		return runInteractive(doc, g, opts, f.file)
	}

	v, err := doc.Run(g, opts)
	if err != nil {
		return err
	}
	return printValue(out, v, f.format)
}

func printValue(out io.Writer, v reflect.Value, format string) error {
	switch format {
	case "yaml":
		data, err := yaml.Marshal(v.Interface())
		if err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		_, err = out.Write(data)
		return err
	case "json":
		data, err := json.MarshalIndent(v.Interface(), "", "  ")
		if err != nil {
			return fmt.Errorf("encode json: %w", err)
		}
		_, err = fmt.Fprintln(out, string(data))
		return err
	case "go":
		_, err := fmt.Fprintf(out, "%+v\n", v.Interface())
		return err
	}
	return fmt.Errorf("unknown format %q", format)
}

func describeCmd() *cobra.Command {
	var (
		file       string
		jsonSchema bool
	)
	cmd := &cobra.Command{
		Use:   "describe -f <doc.yaml>",
		Short: "Print the shape tree of a document's type",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			doc, err := script.LoadFile(file)
			if err != nil {
				return err
			}
			g := witshape.New(nil)
			out := cmd.OutOrStdout()
			if jsonSchema {
				t, err := doc.WIT()
				if err != nil {
					return err
				}
				schema, err := g.Schema(t)
				if err != nil {
					return err
				}
				data, err := json.MarshalIndent(schema, "", "  ")
				if err != nil {
					return fmt.Errorf("encode schema: %w", err)
				}
				_, err = fmt.Fprintln(out, string(data))
				return err
			}
			s, err := doc.Shape(g)
			if err != nil {
				return err
			}
			_, err = fmt.Fprint(out, s.Describe())
			return err
		},
	}
	addFileFlag(cmd.Flags(), &file)
	cmd.Flags().BoolVar(&jsonSchema, "json-schema", false, "Print a JSON Schema instead of the shape tree")
	_ = cmd.MarkFlagRequired("file")
	return cmd
}
