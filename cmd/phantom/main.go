package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"

	"github.com/spf13/cobra"

	"phantom/internal/app"
	"phantom/internal/failure"
)

type ExitCoder interface {
	ExitCode() int
}

type exitError struct {
	code int
	msg  string
}

func (e *exitError) Error() string { return e.msg }
func (e *exitError) ExitCode() int { return e.code }

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	err := execute(ctx, os.Args[1:])
	stop()
	if err != nil {
		reportError(os.Stderr, err)
		os.Exit(exitCode(err))
	}
}

func execute(ctx context.Context, args []string) error {
	cmd := newRootCmd()
	cmd.SetArgs(bareMessageArgs(args))
	return cmd.ExecuteContext(ctx)
}

// bareMessageArgs lets -m/--message appear without a value, as in
// "phantom revision -m". A flag followed by nothing or by another flag is
// rewritten to an explicit empty message. pflag's NoOptDefVal cannot express
// this: with it set, "-m text" would no longer take text as the value.
func bareMessageArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for i, arg := range args {
		if arg == "--" {
			return append(out, args[i:]...)
		}
		if arg == "-m" || arg == "--message" {
			if i+1 == len(args) || (len(args[i+1]) > 1 && strings.HasPrefix(args[i+1], "-")) {
				out = append(out, "--message=")
				continue
			}
		}
		out = append(out, arg)
	}
	return out
}

func reportError(w io.Writer, err error) {
	fmt.Fprintln(w, "error: "+err.Error())
	if hint := failure.HintOf(err); hint != "" {
		fmt.Fprintln(w, "hint: "+hint)
	}
}

// exitCode maps an error to the process status: one code per failure kind.
func exitCode(err error) int {
	var ex ExitCoder
	if errors.As(err, &ex) {
		return ex.ExitCode()
	}
	switch failure.KindOf(err) {
	case failure.KindConfigResolution:
		return 2
	case failure.KindCorruptJournal:
		return 3
	case failure.KindStagingSetup:
		return 4
	case failure.KindEngine:
		return 5
	case failure.KindJournalWrite:
		return 6
	}
	return 1
}

func newRootCmd() *cobra.Command {
	var configPath string
	var engineKind string
	var jsonOutput bool

	newSvc := func() (*app.Service, error) {
		opts := app.Options{ConfigPath: configPath, EngineKind: engineKind}
		if jsonOutput {
			// keep engine chatter off the JSON stream
			opts.Stdout = os.Stderr
		}
		return app.New(opts)
	}

	cmd := &cobra.Command{
		Use:           "phantom",
		Short:         "Run migration tooling against scripts packed in a journal file",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&configPath, "config", "", "path to config file")
	cmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "output JSON")
	cmd.PersistentFlags().StringVar(&engineKind, "engine", "", "engine override: native|alembic")

	cmd.AddCommand(newRevisionCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newHistoryCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newDoctorCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newConfigCmd(newSvc, &jsonOutput))
	cmd.AddCommand(newVersionCmd(&jsonOutput))

	return cmd
}

func newRevisionCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	var message string
	var autogenerate bool
	cmd := &cobra.Command{
		Use:     "revision [ref]",
		Aliases: []string{"rev"},
		Short:   "Create a new revision script inside the journal",
		Long: "Stage the journal named by ref (location:attribute, default: the nearest phantom.toml),\n" +
			"run the engine's revision command against it and write the scripts back.",
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report, err := svc.Revision(cmd.Context(), refArg(args), message, autogenerate)
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, report, "")
			}
			if len(report.Created) == 0 {
				fmt.Printf("no new script; %s holds %d records\n", report.Journal, report.Records)
				return nil
			}
			for _, name := range report.Created {
				fmt.Printf("created %s\n", name)
			}
			fmt.Printf("journal %s now holds %d records\n", report.Journal, report.Records)
			return nil
		},
	}
	cmd.Flags().StringVarP(&message, "message", "m", "", "revision message; bare -m uses \"empty message\"")
	cmd.Flags().BoolVarP(&autogenerate, "autogenerate", "a", false, "let the engine compare models against the database")
	return cmd
}

func newHistoryCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "history [ref]",
		Aliases: []string{"log"},
		Short:   "List the scripts held by a journal, newest first",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			hist, err := svc.History(refArg(args))
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, hist, "")
			}
			if len(hist.Entries) == 0 {
				fmt.Printf("%s is empty\n", hist.Journal)
				return nil
			}
			for _, e := range hist.Entries {
				down := "<base>"
				if len(e.DownRevisions) > 0 {
					down = strings.Join(e.DownRevisions, ", ")
				}
				rev := e.Revision
				if rev == "" {
					rev = "?"
				}
				line := fmt.Sprintf("%s -> %s", down, rev)
				if e.Head {
					line += " (head)"
				}
				if e.Message != "" {
					line += ", " + e.Message
				}
				fmt.Printf("%s  [%s]\n", line, e.Name)
			}
			return nil
		},
	}
}

func newDoctorCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	return &cobra.Command{
		Use:     "doctor [ref]",
		Aliases: []string{"diag", "checkup"},
		Short:   "Run diagnostics",
		Args:    cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			report := svc.RunDoctor(cmd.Context(), refArg(args))
			if *jsonOutput {
				if err := print(true, report, ""); err != nil {
					return err
				}
			} else {
				if report.Healthy {
					fmt.Println("healthy")
				} else {
					fmt.Println("issues found:")
				}
				for _, f := range report.Findings {
					fmt.Printf("- [%s] %s: %s\n", f.Level, f.Code, f.Message)
				}
			}
			if !report.Healthy {
				return &exitError{code: 1, msg: "doctor found issues"}
			}
			return nil
		},
	}
}

func newConfigCmd(newSvc func() (*app.Service, error), jsonOutput *bool) *cobra.Command {
	configCmd := &cobra.Command{Use: "config", Aliases: []string{"cfg"}, Short: "Inspect or change tool configuration"}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Print the effective configuration",
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			if *jsonOutput {
				return print(true, svc.Config, "")
			}
			cfg := svc.Config
			fmt.Printf("config: %s\n", svc.ConfigPath)
			fmt.Printf("engine: %s (%s)\n", cfg.Engine.Kind, strings.Join(cfg.Engine.Command, " "))
			tempRoot := cfg.Staging.TempRoot
			if tempRoot == "" {
				tempRoot = os.TempDir()
			}
			fmt.Printf("staging: %s\n", tempRoot)
			fmt.Printf("storage: %s\n", svc.StateRoot)
			fmt.Printf("logging: %s/%s\n", cfg.Logging.Level, cfg.Logging.Format)
			return nil
		},
	}

	setEngineCmd := &cobra.Command{
		Use:   "set-engine <native|alembic> [-- command...]",
		Short: "Set the default engine and, for alembic, its command line",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			svc, err := newSvc()
			if err != nil {
				return err
			}
			var command []string
			if len(args) > 1 {
				command = args[1:]
			}
			eng, err := svc.SetEngine(args[0], command)
			if err != nil {
				return err
			}
			return print(*jsonOutput, eng, "engine set to "+eng.Kind)
		},
	}

	var level, format string
	setLoggingCmd := &cobra.Command{
		Use:   "set-logging",
		Short: "Set log level and format",
		RunE: func(cmd *cobra.Command, args []string) error {
			if level == "" && format == "" {
				return fmt.Errorf("DOC_CONFIG_LOGGING: --level or --format is required")
			}
			svc, err := newSvc()
			if err != nil {
				return err
			}
			lc, err := svc.SetLogging(level, format)
			if err != nil {
				return err
			}
			return print(*jsonOutput, lc, fmt.Sprintf("logging set to %s/%s", lc.Level, lc.Format))
		},
	}
	setLoggingCmd.Flags().StringVar(&level, "level", "", "debug|info|warn|error")
	setLoggingCmd.Flags().StringVar(&format, "format", "", "text|json")

	configCmd.AddCommand(showCmd, setEngineCmd, setLoggingCmd)
	return configCmd
}

func refArg(args []string) string {
	if len(args) == 0 {
		return ""
	}
	return args[0]
}

func print(jsonOutput bool, payload any, message string) error {
	if jsonOutput {
		blob, err := json.MarshalIndent(payload, "", "  ")
		if err != nil {
			return err
		}
		fmt.Println(string(blob))
		return nil
	}
	if message != "" {
		fmt.Println(message)
	}
	return nil
}
