package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/cryguy/sandbox"
	"github.com/cryguy/sandbox/internal/config"
	"github.com/cryguy/sandbox/internal/diag"
)

var (
	timeoutFlag  time.Duration
	memoryFlag   string
	imageOutFlag string
)

// errScriptFailed makes the process exit non-zero after the report has
// been printed.
var errScriptFailed = errors.New("script failed")

var runCmd = &cobra.Command{
	Use:   "run [file|-]",
	Short: "Run one script and print its output",
	Long: `Run one script read from a file, or from stdin when the argument is "-"
or missing. Text output goes to stdout; a failure report goes to stderr.

Examples:
  sandbox run script.js
  echo 'print(math.pi)' | sandbox run
  sandbox run --timeout 2s --memory 64MiB --image-out out.png draw.js`,
	Args: cobra.MaximumNArgs(1),
	RunE: runRun,
}

func init() {
	runCmd.Flags().DurationVar(&timeoutFlag, "timeout", 0, "Wall-clock limit (overrides config)")
	runCmd.Flags().StringVar(&memoryFlag, "memory", "", "Memory ceiling, e.g. 256MiB (overrides config)")
	runCmd.Flags().StringVar(&imageOutFlag, "image-out", "", "Write the script's image to this file")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configFlag)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	logger, err := cfg.Log.Logger()
	if err != nil {
		return err
	}

	source, err := readSource(cmd.InOrStdin(), args)
	if err != nil {
		return err
	}
	req := sandbox.Request{Source: source, Timeout: timeoutFlag}
	if memoryFlag != "" {
		if req.MemoryCeiling, err = humanize.ParseBytes(memoryFlag); err != nil {
			return fmt.Errorf("parsing --memory: %w", err)
		}
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	sb := sandbox.New(cfg.Limits.Core(), sandbox.WithLogger(logger))
	out := sb.Invoke(ctx, req)
	return printOutcome(cmd.OutOrStdout(), cmd.ErrOrStderr(), out)
}

func readSource(stdin io.Reader, args []string) (string, error) {
	if len(args) == 0 || args[0] == "-" {
		data, err := io.ReadAll(stdin)
		if err != nil {
			return "", fmt.Errorf("reading stdin: %w", err)
		}
		return string(data), nil
	}
	data, err := os.ReadFile(args[0])
	if err != nil {
		return "", fmt.Errorf("reading script: %w", err)
	}
	return string(data), nil
}

func printOutcome(stdout, stderr io.Writer, out *sandbox.Outcome) error {
	if out.OK() {
		fmt.Fprint(stdout, out.Success.Text)
		if img := out.Success.Image; img != nil {
			if imageOutFlag == "" {
				fmt.Fprintf(stderr, "(%s image of %s not saved; use --image-out)\n",
					img.ContentType, diag.FormatBytes(uint64(len(img.Data))))
			} else if err := os.WriteFile(imageOutFlag, img.Data, 0o644); err != nil {
				return fmt.Errorf("writing image: %w", err)
			}
		}
		fmt.Fprintf(stderr, "ran in %s\n", diag.FormatDuration(out.Success.Duration))
		return nil
	}

	r := out.Failure.Report
	fmt.Fprintln(stderr, r.Title)
	fmt.Fprintln(stderr, r.Body)
	if r.Artifact != nil {
		fmt.Fprintln(stderr)
		stderr.Write(r.Artifact.Data)
	}
	return errScriptFailed
}
