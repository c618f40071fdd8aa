package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"webinliner/internal/config"
	"webinliner/internal/logging"
	"webinliner/pkg/inliner"
)

var errNoInput = errors.New("no file to process provided")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd(os.Stdin, os.Stdout, os.Stderr).ExecuteContext(ctx); err != nil {
		stop()
		os.Exit(1)
	}
}

func newRootCmd(stdin io.Reader, stdout, stderr io.Writer) *cobra.Command {
	v := viper.New()
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "inliner [FILE|URL]",
		Short: "Embed the external resources of an HTML page into a single file",
		Long: `inliner reads an HTML page from a file, a URL or stdin and embeds its
stylesheets, scripts, images and favicons, so the result opens without
network access.

Relative references resolve against the directory of the input, or the
current directory when reading stdin.

Every flag can also be set with a WEBINLINER_ environment variable
(WEBINLINER_THREADS, WEBINLINER_NO_JS, ...) or in a config file.`,
		Example: `  inliner index.html -o bundle.html
  inliner https://example.com/path/ -vv > page.html
  curl -s https://example.com/ | inliner -j1 --no-js`,
		Args:         cobra.MaximumNArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfgFile != "" {
				v.SetConfigFile(cfgFile)
				if err := v.ReadInConfig(); err != nil {
					return fmt.Errorf("failed to read config file: %w", err)
				}
			}

			cfg, err := config.Load(v)
			if err != nil {
				return err
			}
			if len(args) == 1 {
				cfg.Input = args[0]
			}

			return run(cmd.Context(), cfg, stdin, stdout, stderr)
		},
	}

	cmd.SetIn(stdin)
	cmd.SetOut(stdout)
	cmd.SetErr(stderr)

	d := config.Default()
	flags := cmd.Flags()
	flags.StringVar(&cfgFile, "config", "", "config file (yaml, toml or json)")
	flags.StringP(config.KeyOutput, "o", "", "output file, stdout if not present")
	flags.CountP(config.KeyVerbose, "v", "verbose mode (-v, -vv, -vvv)")
	flags.BoolP(config.KeyQuiet, "q", false, "silence all output")
	flags.IntP(config.KeyThreads, "j", d.Threads, "number of threads (use -j1 to turn parallelism off)")
	flags.BoolP(config.KeyNoJS, "J", false, "do not embed JavaScript")
	flags.BoolP(config.KeyNoCSS, "C", false, "do not embed CSS stylesheets")
	flags.BoolP(config.KeyNoImg, "I", false, "do not embed images")
	flags.Duration(config.KeyTimeout, d.FetchTimeout, "timeout of a single HTTP fetch")
	flags.Bool(config.KeyStats, false, "print processing statistics to stderr")

	bindFlags(v, flags)

	return cmd
}

// bindFlags hands every flag except --config to viper under its own name.
func bindFlags(v *viper.Viper, flags *pflag.FlagSet) {
	flags.VisitAll(func(f *pflag.Flag) {
		if f.Name == "config" {
			return
		}
		_ = v.BindPFlag(f.Name, f)
	})
}

func run(ctx context.Context, cfg config.Config, stdin io.Reader, stdout, stderr io.Writer) error {
	log := logging.New(logging.Options{
		Level:  logging.Level(cfg.Verbose, cfg.Quiet),
		Output: stderr,
	})
	defer func() { _ = log.Sync() }()
	ctx = logging.Into(ctx, log)

	cwd, err := os.Getwd()
	if err != nil {
		return fmt.Errorf("failed to read working directory: %w", err)
	}

	engine := inliner.New(cfg, log)

	input, src, err := readInput(ctx, engine, cfg.Input, cwd, stdin)
	if err != nil {
		return err
	}
	base := config.Base(input, cwd)
	log.Debug("resolved base URL", zap.Stringer("base", base))

	// the output file is only replaced once the whole document is ready
	var buf bytes.Buffer
	out := stdout
	if cfg.Output != "" {
		out = &buf
	}

	result, err := engine.InlineReader(ctx, src, out, base)
	if err != nil {
		return err
	}

	if cfg.Output != "" {
		if err := writeFile(cfg.Output, buf.Bytes()); err != nil {
			return err
		}
	}

	if cfg.Stats {
		fmt.Fprintln(stderr, result.ProcessingStats)
		for _, u := range result.Unresolved {
			fmt.Fprintf(stderr, "  unresolved %s: %s\n", u.Handler, u.Node)
		}
	}
	return nil
}

// writeFile writes data next to path and renames it into place.
func writeFile(path string, data []byte) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), "."+filepath.Base(path)+".*")
	if err != nil {
		return fmt.Errorf("failed to create output file: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Chmod(0o644); err != nil {
		tmp.Close()
		return fmt.Errorf("failed to write output file: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("failed to close output file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		return fmt.Errorf("failed to replace output file: %w", err)
	}
	return nil
}

// readInput returns the document source and, when it came from a file or
// URL, its absolute location.
func readInput(ctx context.Context, engine *inliner.Inliner, input, cwd string, stdin io.Reader) (*url.URL, io.Reader, error) {
	if input == "" {
		if isTerminal(stdin) {
			return nil, nil, errNoInput
		}
		return nil, stdin, nil
	}

	u, err := config.ResolveInput(input, cwd)
	if err != nil {
		return nil, nil, fmt.Errorf("cannot parse FILE/URL %q: %w", input, err)
	}

	text, err := engine.Loader(nil).LoadString(ctx, u.String())
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load input: %w", err)
	}
	return u, strings.NewReader(text), nil
}

// isTerminal reports whether r is an interactive character device.
func isTerminal(r io.Reader) bool {
	f, ok := r.(*os.File)
	if !ok {
		return false
	}
	info, err := f.Stat()
	if err != nil {
		return false
	}
	return info.Mode()&os.ModeCharDevice != 0
}
