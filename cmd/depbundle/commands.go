package depbundle

import (
	"fmt"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"github.com/spf13/cobra/doc"

	"github.com/arthur-debert/depbundle/internal/version"
	"github.com/arthur-debert/depbundle/pkg/closure"
	"github.com/arthur-debert/depbundle/pkg/config"
	"github.com/arthur-debert/depbundle/pkg/deploy"
	"github.com/arthur-debert/depbundle/pkg/elfinfo"
	"github.com/arthur-debert/depbundle/pkg/errors"
	"github.com/arthur-debert/depbundle/pkg/exclude"
	"github.com/arthur-debert/depbundle/pkg/filesystem"
	"github.com/arthur-debert/depbundle/pkg/locator"
	"github.com/arthur-debert/depbundle/pkg/logging"
	"github.com/arthur-debert/depbundle/pkg/modules"
	"github.com/arthur-debert/depbundle/pkg/report"
	"github.com/arthur-debert/depbundle/pkg/stage"
	"github.com/arthur-debert/depbundle/pkg/topics"
	"github.com/arthur-debert/depbundle/pkg/ui"
)

// NewRootCmd creates and returns the root command
func NewRootCmd() *cobra.Command {
	initTemplateFormatting()

	var verbosity int

	rootCmd := &cobra.Command{
		Use:     "depbundle",
		Short:   MsgRootShort,
		Long:    MsgRootLong,
		Version: version.Version,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			logging.SetupLogger(verbosity)
			log.Debug().Str("command", cmd.Name()).Msg("Command started")
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			_ = cmd.Help()
			return fmt.Errorf(MsgErrNoCommand)
		},
		SilenceUsage:      true,
		SilenceErrors:     true,
		DisableAutoGenTag: true,
	}

	rootCmd.PersistentFlags().CountVarP(&verbosity, "verbose", "v", MsgFlagVerbose)
	rootCmd.PersistentFlags().StringP("config", "c", "", MsgFlagConfig)
	rootCmd.PersistentFlags().String("root", "", MsgFlagRoot)
	rootCmd.PersistentFlags().StringP("format", "f", "auto", MsgFlagFormat)

	rootCmd.AddGroup(&cobra.Group{ID: "core", Title: "COMMANDS:"})
	rootCmd.AddGroup(&cobra.Group{ID: "query", Title: "QUERIES:"})
	rootCmd.AddGroup(&cobra.Group{ID: "misc", Title: "MISC:"})

	rootCmd.SetUsageTemplate(MsgUsageTemplate)

	rootCmd.AddCommand(newDeployCmd())
	rootCmd.AddCommand(newInspectCmd())
	rootCmd.AddCommand(newResolveCmd())
	rootCmd.AddCommand(newModulesCmd())
	rootCmd.AddCommand(newGenConfigCmd())
	rootCmd.AddCommand(newTopicsCmd())
	rootCmd.AddCommand(newVersionCmd())
	rootCmd.AddCommand(newCompletionCmd())
	rootCmd.AddCommand(newManCmd())

	opts := topics.Options{Renderer: topics.NewGlamourRenderer()}
	if !isTerminal() {
		opts.Renderer = topics.PlainRenderer{}
	}
	m, err := topics.Load(topics.Builtin(), opts)
	if err != nil {
		log.Warn().Err(err).Msg("help topics unavailable")
	} else {
		m.Install(rootCmd)
	}

	return rootCmd
}

// loadConfig layers the --root and --config flags and any command
// overrides over the configuration files.
func loadConfig(cmd *cobra.Command, overrides map[string]interface{}) (*config.Config, error) {
	flags := cmd.Root().PersistentFlags()
	root, _ := flags.GetString("root")
	file, _ := flags.GetString("config")

	cfg, err := config.Load(config.LoadOptions{
		RootDir:    root,
		ConfigFile: file,
		Overrides:  overrides,
	})
	if err != nil {
		return nil, fmt.Errorf(MsgErrLoadConfig, err)
	}
	log.Debug().
		Str("root_dir", cfg.RootDir).
		Str("install_dir", cfg.InstallPath()).
		Msg("configuration loaded")
	return cfg, nil
}

func newRenderer(cmd *cobra.Command) (ui.Renderer, error) {
	name, _ := cmd.Root().PersistentFlags().GetString("format")
	format, err := ui.ParseFormat(name)
	if err != nil {
		return nil, err
	}
	return ui.NewRenderer(format, cmd.OutOrStdout())
}

func newDeployCmd() *cobra.Command {
	var (
		dryRun       bool
		skipBuild    bool
		reportPath   string
		reportFormat string
	)

	cmd := &cobra.Command{
		Use:     "deploy",
		Short:   MsgDeployShort,
		Long:    MsgDeployLong,
		Example: MsgDeployExample,
		GroupID: "core",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			overrides := map[string]interface{}{}
			if reportPath != "" {
				overrides["report.path"] = reportPath
			}
			if reportFormat != "" {
				overrides["report.format"] = reportFormat
			}
			cfg, err := loadConfig(cmd, overrides)
			if err != nil {
				return err
			}
			renderer, err := newRenderer(cmd)
			if err != nil {
				return err
			}

			d, err := deploy.New(cfg, deploy.Options{DryRun: dryRun, SkipBuild: skipBuild})
			if err != nil {
				return err
			}

			done := logging.LogOperationStart(log.Logger, "deploy")
			rep, runErr := d.Run(cmd.Context())
			done()

			if rep != nil {
				if err := saveReport(cfg, rep); err != nil && runErr == nil {
					runErr = err
				}
				if err := renderer.RenderResult(rep); err != nil && runErr == nil {
					runErr = err
				}
			}
			if runErr != nil {
				return runErr
			}
			if rep != nil && !rep.OK() {
				return errors.Newf(errors.ErrCopyFailed, MsgErrFailedFiles, rep.Summary.Failed)
			}
			return nil
		},
	}

	cmd.Flags().BoolVarP(&dryRun, "dry-run", "n", false, MsgFlagDryRun)
	cmd.Flags().BoolVar(&skipBuild, "skip-build", false, MsgFlagSkipBuild)
	cmd.Flags().StringVarP(&reportPath, "report", "r", "", MsgFlagReport)
	cmd.Flags().StringVar(&reportFormat, "report-format", "", MsgFlagReportFormat)
	return cmd
}

// saveReport writes rep to the configured report path, if any. The file
// extension picks the format; report.format is used otherwise.
func saveReport(cfg *config.Config, rep *report.Report) error {
	if cfg.Report.Path == "" {
		return nil
	}
	def, err := report.ParseFormat(cfg.Report.Format)
	if err != nil {
		return err
	}
	path := cfg.Resolve(cfg.Report.Path)
	if err := rep.Save(path, report.FormatForPath(path, def)); err != nil {
		return err
	}
	log.Info().Str("path", path).Msgf(MsgReportSaved, path)
	return nil
}

func newInspectCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "inspect FILE...",
		Short:   MsgInspectShort,
		Long:    MsgInspectLong,
		GroupID: "query",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			renderer, err := newRenderer(cmd)
			if err != nil {
				return err
			}

			result := &InspectResult{}
			for _, path := range args {
				desc, err := elfinfo.Introspect(path)
				if err != nil {
					result.Errors = append(result.Errors, FileError{Path: path, Error: err.Error()})
					continue
				}
				result.Binaries = append(result.Binaries, newBinaryInfo(desc))
			}
			if err := renderer.RenderResult(result); err != nil {
				return err
			}
			return failedFiles(result.Errors, len(args))
		},
	}
}

func newResolveCmd() *cobra.Command {
	var transitive bool
	cmd := &cobra.Command{
		Use:     "resolve BINARY...",
		Short:   MsgResolveShort,
		Long:    MsgResolveLong,
		GroupID: "query",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, nil)
			if err != nil {
				return err
			}
			renderer, err := newRenderer(cmd)
			if err != nil {
				return err
			}
			in, err := deploy.NewIntrospector(cfg)
			if err != nil {
				return err
			}
			loc, err := deploy.NewLocator(cfg, in)
			if err != nil {
				return err
			}

			result := &ResolveResult{}
			for _, path := range args {
				desc, err := in.Introspect(path)
				if err != nil {
					result.Errors = append(result.Errors, FileError{Path: path, Error: err.Error()})
					continue
				}
				res := loc.Resolve(desc)
				result.Binaries = append(result.Binaries, Resolution{
					Binary:  path,
					Found:   res.Found,
					Missing: res.Missing,
				})
			}
			if transitive {
				c, err := resolveClosure(cfg, loc, args)
				if err != nil {
					return err
				}
				result.Closure = c
			}
			if err := renderer.RenderResult(result); err != nil {
				return err
			}
			return failedFiles(result.Errors, len(args))
		},
	}
	cmd.Flags().BoolVar(&transitive, "closure", false, MsgFlagClosure)
	return cmd
}

// resolveClosure walks the library closure of binaries without copying
// anything, honoring the exclusion file.
func resolveClosure(cfg *config.Config, loc *locator.Locator, binaries []string) (*Closure, error) {
	excl, err := exclude.Load(cfg.ExcludePath())
	if err != nil {
		return nil, err
	}
	stager := stage.New(filesystem.NewOS(), cfg.InstallPath(), true)
	r, err := closure.New(closure.Options{
		Locator: loc,
		Exclude: excl,
		Stager:  stager,
		LibDir:  cfg.InstallArea(cfg.Layout.LibDir),
	})
	if err != nil {
		return nil, err
	}
	res := r.Resolve(binaries, nil)
	return &Closure{
		Libraries:  res.Libraries,
		Excluded:   res.Excluded,
		Unresolved: res.Unresolved,
	}, nil
}

func newModulesCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "modules PATH...",
		Short:   MsgModulesShort,
		Long:    MsgModulesLong,
		GroupID: "query",
		Args:    cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			renderer, err := newRenderer(cmd)
			if err != nil {
				return err
			}

			result := &ModulesResult{}
			for _, path := range args {
				files, err := modules.ListFiles(path)
				if err != nil {
					result.Errors = append(result.Errors, FileError{Path: path, Error: err.Error()})
					continue
				}
				for _, file := range files {
					refs, err := modules.ScanFile(file)
					if err != nil {
						result.Errors = append(result.Errors, FileError{Path: file, Error: err.Error()})
						continue
					}
					result.Files++
					for _, ref := range refs {
						result.Imports = append(result.Imports, ModuleImport{File: file, Ref: ref})
					}
				}
			}
			if err := renderer.RenderResult(result); err != nil {
				return err
			}
			return failedFiles(result.Errors, len(args))
		},
	}
}

func failedFiles(errs []FileError, total int) error {
	if len(errs) == 0 {
		return nil
	}
	return errors.Newf(errors.ErrInvalidInput, "%d of %d files could not be read", len(errs), total)
}

func newGenConfigCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "genconfig",
		Short:   MsgGenConfigShort,
		Long:    MsgGenConfigLong,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprint(cmd.OutOrStdout(), config.GenerateConfigContent())
			return err
		},
	}
}

func newTopicsCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "topics",
		Short:   MsgTopicsShort,
		Long:    MsgTopicsLong,
		GroupID: "misc",
		RunE: func(cmd *cobra.Command, args []string) error {
			helpCmd, _, err := cmd.Root().Find([]string{"help"})
			if err != nil || helpCmd == nil || helpCmd.Name() != "help" {
				return fmt.Errorf("help command not found")
			}
			helpCmd.SetOut(cmd.OutOrStdout())
			switch {
			case helpCmd.RunE != nil:
				return helpCmd.RunE(helpCmd, []string{"topics"})
			case helpCmd.Run != nil:
				helpCmd.Run(helpCmd, []string{"topics"})
				return nil
			}
			return fmt.Errorf("help command not found")
		},
	}
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:     "version",
		Short:   MsgVersionShort,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			_, err := fmt.Fprintf(cmd.OutOrStdout(), "depbundle %s (commit %s, built %s)\n",
				version.Version, version.Commit, version.Date)
			return err
		},
	}
}

func newCompletionCmd() *cobra.Command {
	return &cobra.Command{
		Use:                   "completion [bash|zsh|fish|powershell]",
		Short:                 MsgCompletionShort,
		Long:                  MsgCompletionLong,
		DisableFlagsInUseLine: true,
		ValidArgs:             []string{"bash", "zsh", "fish", "powershell"},
		Args:                  cobra.MatchAll(cobra.ExactArgs(1), cobra.OnlyValidArgs),
		GroupID:               "misc",
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			switch args[0] {
			case "bash":
				return cmd.Root().GenBashCompletionV2(out, true)
			case "zsh":
				return cmd.Root().GenZshCompletion(out)
			case "fish":
				return cmd.Root().GenFishCompletion(out, true)
			case "powershell":
				return cmd.Root().GenPowerShellCompletionWithDesc(out)
			}
			return nil
		},
	}
}

func newManCmd() *cobra.Command {
	var dir string
	cmd := &cobra.Command{
		Use:     "man",
		Short:   MsgManShort,
		Hidden:  true,
		GroupID: "misc",
		Args:    cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := os.MkdirAll(dir, 0755); err != nil {
				return err
			}
			return doc.GenManTree(cmd.Root(), ManHeader(), dir)
		},
	}
	cmd.Flags().StringVar(&dir, "dir", "man", MsgFlagManDir)
	return cmd
}

// ManHeader is the header shared by every generated man page.
func ManHeader() *doc.GenManHeader {
	return &doc.GenManHeader{
		Title:   "DEPBUNDLE",
		Section: "1",
		Source:  "depbundle " + version.Version,
		Manual:  "depbundle manual",
	}
}
