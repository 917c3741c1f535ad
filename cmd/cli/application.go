package cli

import (
	"context"
	"errors"
	"fmt"
	"os"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/sierra-ptype/internal/ptypes"
	"github.com/temirov/sierra-ptype/internal/utils"
)

const (
	applicationNameConstant                 = "sierra-ptype"
	applicationShortDescriptionConstant     = "Move juvenile Sierra patrons who reached adult age to adult PTypes"
	applicationLongDescriptionConstant      = "sierra-ptype finds juvenile patrons in Sierra who have reached the configured adult age and moves them to the paired adult patron type. Use the run subcommand to start a migration; invoking sierra-ptype alone migrates nothing and exits with an error."
	configFileFlagNameConstant              = "config"
	configFileFlagUsageConstant             = "Optional path to a configuration file (.env, YAML or JSON). Defaults to ./.env when present."
	logLevelFlagNameConstant                = "log-level"
	logLevelFlagUsageConstant               = "Override the configured log level (DEBUG, INFO, WARNING or ERROR)."
	logFormatFlagNameConstant               = "log-format"
	logFormatFlagUsageConstant              = "Override the configured log format (console or structured)."
	logLevelConfigKeyConstant               = "log_level"
	logFormatConfigKeyConstant              = "log_format"
	environmentPrefixConstant               = ""
	configurationNameConstant               = "config"
	configurationTypeConstant               = "yaml"
	defaultEnvironmentFileNameConstant      = ".env"
	defaultConfigurationSearchPathConstant  = "."
	configurationInitializedMessageConstant = "configuration initialized"
	unsupportedLogLevelMessageConstant      = "unsupported log level, using INFO"
	configurationLogLevelFieldConstant      = "log_level"
	configurationLogFormatFieldConstant     = "log_format"
	configurationFileFieldConstant          = "config_file"
	configurationSourceFieldConstant        = "configuration"
	configurationLoadMessageConstant        = "unable to load configuration"
	unsupportedLogFormatTemplateConstant    = "unsupported log format %q"
	loggerCreationErrorTemplateConstant     = "unable to create logger: %w"
	loggerSyncErrorTemplateConstant         = "unable to flush logger: %w"
	loggerNotInitializedMessageConstant     = "logger not initialized"
	subcommandRequiredMessageConstant       = "a subcommand is required, use run to migrate patrons"
)

var errSubcommandRequired = errors.New(subcommandRequiredMessageConstant)

// ApplicationConfiguration describes the configuration of the CLI entrypoint.
// Job settings share the flat key space so every key maps to one environment variable.
type ApplicationConfiguration struct {
	LogLevel  string               `mapstructure:"log_level"`
	LogFormat string               `mapstructure:"log_format"`
	Job       ptypes.Configuration `mapstructure:",squash"`
}

// Application wires the Cobra root command, configuration loader, and structured logger.
type Application struct {
	rootCommand           *cobra.Command
	configurationLoader   *utils.ConfigurationLoader
	loggerFactory         *utils.LoggerFactory
	logger                *zap.Logger
	configuration         ApplicationConfiguration
	configurationMetadata utils.LoadedConfiguration
	configurationFilePath string
	logLevelFlagValue     string
	logFormatFlagValue    string
}

// NewApplication assembles a fully wired CLI application instance.
func NewApplication() *Application {
	configurationLoader := utils.NewConfigurationLoader(
		configurationNameConstant,
		configurationTypeConstant,
		environmentPrefixConstant,
		[]string{defaultConfigurationSearchPathConstant},
	)
	configurationLoader.SetEmbeddedConfiguration(defaultConfigurationContent, configurationTypeConstant)

	application := &Application{
		configurationLoader: configurationLoader,
		loggerFactory:       utils.NewLoggerFactory(),
		logger:              zap.NewNop(),
	}

	cobraCommand := &cobra.Command{
		Use:           applicationNameConstant,
		Short:         applicationShortDescriptionConstant,
		Long:          applicationLongDescriptionConstant,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(command *cobra.Command, arguments []string) error {
			return application.initializeConfiguration(command)
		},
		RunE: func(command *cobra.Command, arguments []string) error {
			return application.runRootCommand(command, arguments)
		},
	}

	cobraCommand.SetContext(context.Background())
	cobraCommand.PersistentFlags().StringVar(&application.configurationFilePath, configFileFlagNameConstant, "", configFileFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logLevelFlagValue, logLevelFlagNameConstant, "", logLevelFlagUsageConstant)
	cobraCommand.PersistentFlags().StringVar(&application.logFormatFlagValue, logFormatFlagNameConstant, "", logFormatFlagUsageConstant)

	ptypeBuilder := ptypes.CommandBuilder{
		LoggerProvider: func() *zap.Logger {
			return application.logger
		},
		ConfigurationProvider: func() ptypes.Configuration {
			return application.configuration.Job
		},
	}

	runCommand, runBuildError := ptypeBuilder.BuildRunCommand()
	if runBuildError == nil {
		cobraCommand.AddCommand(runCommand)
	}

	queryCommand, queryBuildError := ptypeBuilder.BuildQueryCommand()
	if queryBuildError == nil {
		cobraCommand.AddCommand(queryCommand)
	}

	application.rootCommand = cobraCommand

	return application
}

// Execute runs the configured Cobra command hierarchy and ensures logger flushing.
func (application *Application) Execute() error {
	executionError := application.rootCommand.Execute()
	if syncError := application.flushLogger(); syncError != nil {
		return fmt.Errorf(loggerSyncErrorTemplateConstant, syncError)
	}
	return executionError
}

// Execute builds a fresh application instance and executes the root command hierarchy.
func Execute() error {
	return NewApplication().Execute()
}

func (application *Application) initializeConfiguration(command *cobra.Command) error {
	loadedConfiguration, loadError := application.configurationLoader.LoadConfiguration(
		application.resolveConfigurationFilePath(),
		defaultConfigurationValues(),
		&application.configuration,
	)
	if loadError != nil {
		return ptypes.ConfigurationError{Field: configurationSourceFieldConstant, Message: configurationLoadMessageConstant, Cause: loadError}
	}

	application.configurationMetadata = loadedConfiguration

	if flagChanged(command, logLevelFlagNameConstant) {
		application.configuration.LogLevel = application.logLevelFlagValue
	}

	if flagChanged(command, logFormatFlagNameConstant) {
		application.configuration.LogFormat = application.logFormatFlagValue
	}

	logLevel, logLevelRecognized := utils.ParseLogLevel(application.configuration.LogLevel)
	if !logLevelRecognized {
		logLevel = utils.LogLevelInfo
	}

	logFormat, logFormatRecognized := utils.ParseLogFormat(application.configuration.LogFormat)
	if !logFormatRecognized {
		return ptypes.ConfigurationError{Field: logFormatConfigKeyConstant, Message: fmt.Sprintf(unsupportedLogFormatTemplateConstant, application.configuration.LogFormat)}
	}

	logger, loggerCreationError := application.loggerFactory.CreateLogger(logLevel, logFormat)
	if loggerCreationError != nil {
		return fmt.Errorf(loggerCreationErrorTemplateConstant, loggerCreationError)
	}

	application.logger = logger

	if !logLevelRecognized {
		application.logger.Warn(
			unsupportedLogLevelMessageConstant,
			zap.String(configurationLogLevelFieldConstant, application.configuration.LogLevel),
		)
	}

	application.logger.Debug(
		configurationInitializedMessageConstant,
		zap.String(configurationLogLevelFieldConstant, string(logLevel)),
		zap.String(configurationLogFormatFieldConstant, string(logFormat)),
		zap.String(configurationFileFieldConstant, application.configurationMetadata.ConfigFileUsed),
	)

	return nil
}

// resolveConfigurationFilePath falls back to ./.env when no file is given.
func (application *Application) resolveConfigurationFilePath() string {
	if len(application.configurationFilePath) > 0 {
		return application.configurationFilePath
	}

	fileInfo, statError := os.Stat(defaultEnvironmentFileNameConstant)
	if statError != nil || fileInfo.IsDir() {
		return ""
	}
	return defaultEnvironmentFileNameConstant
}

func (application *Application) runRootCommand(command *cobra.Command, arguments []string) error {
	if application.logger == nil {
		return errors.New(loggerNotInitializedMessageConstant)
	}
	fmt.Fprint(command.ErrOrStderr(), command.UsageString())
	return errSubcommandRequired
}

func (application *Application) flushLogger() error {
	if application.logger == nil {
		return nil
	}

	syncError := application.logger.Sync()
	switch {
	case syncError == nil:
		return nil
	case errors.Is(syncError, syscall.ENOTSUP):
		return nil
	case errors.Is(syncError, syscall.EINVAL):
		return nil
	default:
		return syncError
	}
}

// flagChanged reports whether a flag, including inherited persistent flags, was set.
func flagChanged(command *cobra.Command, flagName string) bool {
	return command != nil && command.Flags().Changed(flagName)
}
