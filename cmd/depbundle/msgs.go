package depbundle

import (
	_ "embed"
	"strings"
)

// Short descriptions and flag help.
const (
	MsgRootShort       = "Assemble a relocatable application bundle"
	MsgDeployShort     = "Build and bundle the program with its dependencies"
	MsgInspectShort    = "Show what ELF files import and where they search"
	MsgResolveShort    = "Locate the direct library imports of binaries"
	MsgModulesShort    = "List the module imports of files and directories"
	MsgGenConfigShort  = "Print the default configuration"
	MsgVersionShort    = "Print version information"
	MsgTopicsShort     = "List the help topics"
	MsgTopicsLong      = "List every help topic. Read one with \"depbundle help <topic>\"."
	MsgCompletionShort = "Generate shell completion scripts"
	MsgManShort        = "Generate man pages"

	MsgFlagVerbose      = "Increase verbosity (-v INFO, -vv DEBUG, -vvv TRACE)"
	MsgFlagConfig       = "Configuration file loaded after the project file"
	MsgFlagRoot         = "Program root directory (default: current directory)"
	MsgFlagFormat       = "Output format: auto, term, text, json or yaml"
	MsgFlagDryRun       = "Resolve everything but write nothing"
	MsgFlagSkipBuild    = "Use the install root as it is instead of building"
	MsgFlagReport       = "Write the run report to this file"
	MsgFlagReportFormat = "Report format when the file extension does not tell: json, yaml, toml or xml"
	MsgFlagClosure      = "Also list every library reached transitively"
	MsgFlagManDir       = "Directory the man pages are written to"

	MsgErrNoCommand   = "no command specified"
	MsgErrLoadConfig  = "failed to load configuration: %w"
	MsgErrFailedFiles = "%d files could not be copied"
	MsgReportSaved    = "report written to %s"
)

var (
	//go:embed msgs/root-long.txt
	msgRootLongRaw string
	MsgRootLong    = strings.TrimSpace(msgRootLongRaw)

	//go:embed msgs/deploy-long.txt
	msgDeployLongRaw string
	MsgDeployLong    = strings.TrimSpace(msgDeployLongRaw)

	//go:embed msgs/deploy-example.txt
	msgDeployExampleRaw string
	MsgDeployExample    = strings.TrimRight(msgDeployExampleRaw, "\n")

	//go:embed msgs/inspect-long.txt
	msgInspectLongRaw string
	MsgInspectLong    = strings.TrimSpace(msgInspectLongRaw)

	//go:embed msgs/resolve-long.txt
	msgResolveLongRaw string
	MsgResolveLong    = strings.TrimSpace(msgResolveLongRaw)

	//go:embed msgs/modules-long.txt
	msgModulesLongRaw string
	MsgModulesLong    = strings.TrimSpace(msgModulesLongRaw)

	//go:embed msgs/genconfig-long.txt
	msgGenConfigLongRaw string
	MsgGenConfigLong    = strings.TrimSpace(msgGenConfigLongRaw)

	//go:embed msgs/completion-long.txt
	msgCompletionLongRaw string
	MsgCompletionLong    = strings.TrimSpace(msgCompletionLongRaw)

	//go:embed msgs/usage-template.txt
	msgUsageTemplateRaw string
	MsgUsageTemplate    = strings.TrimSpace(msgUsageTemplateRaw)
)
