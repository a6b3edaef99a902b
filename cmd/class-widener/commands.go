package main

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"class-widener/internal/archive"
	"class-widener/internal/config"
	"class-widener/internal/diff"
	"class-widener/internal/fsutil"
	"class-widener/internal/logging"
	"class-widener/internal/manifest"
	"class-widener/internal/rules"
	"class-widener/internal/widen"
)

// cli carries state shared by all commands of one invocation.
type cli struct {
	stdout, stderr io.Writer

	configPath   string
	verbose      bool
	logFormat    string
	workers      int
	manifestName string
	strict       bool
	symlinks     bool
	manifests    []string
	ruleFiles    []string
	maxDiffBytes int

	cfg    *config.Config
	logger *zap.Logger
}

func newRootCmd(stdout, stderr io.Writer) *cobra.Command {
	c := &cli{stdout: stdout, stderr: stderr}
	root := &cobra.Command{
		Use:   "class-widener",
		Short: "Widen class access and inject interfaces into JAR archives",
		Long: `class-widener rewrites the classes of a JAR according to access rule
files ("accessWidener v2 named") and mod manifests that declare injected
interfaces. Access can only ever be widened: private members become
public or protected, final is removed where a rule asks for it, and
requested interfaces are added to the declared list.`,
		SilenceUsage:      true,
		SilenceErrors:     true,
		PersistentPreRunE: c.setup,
		PersistentPostRun: func(*cobra.Command, []string) {
			if c.logger != nil {
				_ = c.logger.Sync()
			}
		},
	}
	root.SetOut(stdout)
	root.SetErr(stderr)

	pf := root.PersistentFlags()
	pf.StringVar(&c.configPath, "config", config.DefaultConfigFile, "YAML configuration file (optional)")
	pf.BoolVarP(&c.verbose, "verbose", "v", false, "debug logging")
	pf.StringVar(&c.logFormat, "log-format", "", "log encoder: console or json")
	pf.IntVarP(&c.workers, "workers", "j", 0, "concurrent class rewrites (0 = GOMAXPROCS)")
	pf.StringVar(&c.manifestName, "manifest-name", "", "manifest file name looked up in directories and archives")
	pf.BoolVar(&c.strict, "strict", false, "treat lint findings as errors")
	pf.BoolVar(&c.symlinks, "follow-symlinks", true, "follow symlinks while scanning manifest directories")
	pf.StringSliceVarP(&c.manifests, "manifest", "m", nil, "manifest file, mod archive or directory (repeatable)")
	pf.StringSliceVarP(&c.ruleFiles, "rules", "r", nil, "standalone rule file (repeatable)")

	root.AddCommand(
		c.applyCmd(),
		c.planCmd(),
		c.checkCmd(),
		c.resolveCmd(),
		c.schemaCmd(),
	)
	return root
}

// setup loads configuration, overlays flags and builds the logger.
func (c *cli) setup(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(c.configPath)
	if err != nil {
		return err
	}
	flags := cmd.Flags()
	if flags.Changed("workers") {
		cfg.Workers = c.workers
	}
	if flags.Changed("manifest-name") {
		cfg.ManifestName = c.manifestName
	}
	if flags.Changed("follow-symlinks") {
		cfg.FollowSymlinks = c.symlinks
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = c.logFormat
	}
	if c.verbose {
		cfg.Logging.Level = "debug"
	}
	if c.strict {
		cfg.Strict = true
	}
	cfg.Manifests = append(cfg.Manifests, c.manifests...)
	cfg.Rules = append(cfg.Rules, c.ruleFiles...)
	c.cfg = cfg

	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return err
	}
	c.logger = logger
	return nil
}

// positional fills input/output from [input [output]] arguments.
func (c *cli) positional(args []string) {
	if len(args) > 0 {
		c.cfg.Input = args[0]
	}
	if len(args) > 1 {
		c.cfg.Output = args[1]
	}
}

func (c *cli) applyCmd() *cobra.Command {
	var inPlace bool
	cmd := &cobra.Command{
		Use:   "apply [input.jar [output.jar]]",
		Short: "Rewrite an archive with the resolved rules and interface injections",
		Args:  cobra.MaximumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.positional(args)
			if inPlace {
				if c.cfg.Output != "" && !c.cfg.InPlace() {
					return fmt.Errorf("--in-place conflicts with output %q", c.cfg.Output)
				}
				c.cfg.Output = c.cfg.Input
			}
			st, err := widen.Apply(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "%s: %d entries, %d classes, %d rewritten\n",
				c.cfg.Output, st.Entries, st.Classes, st.Rewritten)
			return nil
		},
	}
	cmd.Flags().BoolVar(&inPlace, "in-place", false, "replace the input archive")
	return cmd
}

func (c *cli) planCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "plan [input.jar]",
		Short: "Show what apply would change, as unified diffs of class summaries",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c.positional(args)
			changes, st, err := widen.Plan(cmd.Context(), c.cfg, c.logger)
			if err != nil {
				return err
			}
			return c.printPlan(changes, st)
		},
	}
	cmd.Flags().IntVar(&c.maxDiffBytes, "max-diff-bytes", 1_000_000, "max summary bytes per class diff (0 = no limit)")
	return cmd
}

func (c *cli) printPlan(changes []archive.Change, st archive.Stats) error {
	opt := diff.Options{MaxBytes: c.maxDiffBytes}
	for _, ch := range changes {
		body, _ := diff.Entry(ch.Entry, ch.Before, ch.After, opt)
		if _, err := io.WriteString(c.stdout, body); err != nil {
			return err
		}
	}
	for _, name := range st.Missing {
		fmt.Fprintf(c.stdout, "# not in archive: %s\n", name)
	}
	fmt.Fprintf(c.stdout, "# %d of %d classes would change\n", st.Rewritten, st.Classes)
	return nil
}

func (c *cli) checkCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Parse and lint all manifests and rule files",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := c.cfg.ValidateSources(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			in, err := widen.Load(c.cfg, c.logger)
			if err != nil {
				return err
			}
			fmt.Fprintf(c.stdout, "%d manifests, %d rule files, %d rules, %d classes, %d injection targets\n",
				len(in.Sources.Manifests), len(in.Sources.RuleFiles), len(in.Rules), len(in.Set), len(in.Interfaces))
			if in.Lint != nil {
				fmt.Fprintln(c.stdout, in.Lint)
			} else {
				fmt.Fprintln(c.stdout, "ok")
			}
			return nil
		},
	}
}

func (c *cli) resolveCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "resolve",
		Short: "Print the merged rule set as a single canonical rule file",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			if err := c.cfg.ValidateSources(); err != nil {
				return fmt.Errorf("config: %w", err)
			}
			in, err := widen.Load(c.cfg, c.logger)
			if err != nil {
				return err
			}
			merged := in.Set.Rules()
			if output == "" {
				return rules.Write(c.stdout, merged)
			}
			return fsutil.WriteAtomic(output, 0o644, func(w io.Writer) error {
				return rules.Write(w, merged)
			})
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the rule file here instead of stdout")
	return cmd
}

func (c *cli) schemaCmd() *cobra.Command {
	var output string
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Print the JSON schema of the manifest fields that are read",
		Args:  cobra.NoArgs,
		RunE: func(*cobra.Command, []string) error {
			b, err := manifest.Schema()
			if err != nil {
				return err
			}
			b = append(b, '\n')
			if output != "" {
				return fsutil.WriteFileAtomic(output, b, 0o644)
			}
			_, err = c.stdout.Write(b)
			return err
		},
	}
	cmd.Flags().StringVarP(&output, "output", "o", "", "write the schema here instead of stdout")
	return cmd
}
