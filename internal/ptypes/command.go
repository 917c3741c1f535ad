package ptypes

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/temirov/sierra-ptype/internal/sierra"
)

const (
	runCommandUseConstant                   = "run"
	runCommandShortDescriptionConstant      = "Move juvenile patrons who reached adult age to their adult PType"
	runCommandLongDescriptionConstant       = "run queries Sierra for every configured juvenile PType and logs the patrons born on or before the adult birthdate threshold. Patrons are only updated with --apply."
	queryCommandUseConstant                 = "query"
	queryCommandShortDescriptionConstant    = "Print the patron query submitted for a juvenile PType"
	queryCommandLongDescriptionConstant     = "query prints the Sierra patron query document a run would submit for the given juvenile PType. No request is made."
	runUnexpectedArgumentsMessageConstant   = "run does not accept positional arguments"
	queryUnexpectedArgumentsMessageConstant = "query does not accept positional arguments"
	runExecutionErrorTemplateConstant       = "ptype run failed: %w"
	sessionErrorTemplateConstant            = "unable to open Sierra session: %w"
	metricsWriteErrorTemplateConstant       = "unable to write metrics file %s: %w"
	queryEncodingErrorTemplateConstant      = "unable to encode query: %w"
	applyFlagNameConstant                   = "apply"
	applyFlagDescriptionConstant            = "Update patron PTypes instead of only logging them"
	continueOnErrorFlagNameConstant         = "continue-on-error"
	continueOnErrorFlagDescriptionConstant  = "Keep processing remaining PType pairs after a failure"
	metricsFileFlagNameConstant             = "metrics-file"
	metricsFileFlagDescriptionConstant      = "Write run metrics to this file in Prometheus text format"
	batchSizeFlagNameConstant               = "batch-size"
	batchSizeFlagDescriptionConstant        = "Maximum patrons fetched per PType pair"
	juvenilePTypeFlagNameConstant           = "juvenile-ptype"
	juvenilePTypeFlagDescriptionConstant    = "Juvenile PType to build the query for"
	adultAgeFlagNameConstant                = "adult-age"
	adultAgeFlagDescriptionConstant         = "Adult age in years (defaults to the configured adult age)"
	metricsFileFieldNameConstant            = "metrics_file"
	metricsWrittenMessageConstant           = "Run metrics written"
	queryIndentConstant                     = "  "
	queryNegativePTypeMessageConstant       = "must not be negative"
)

var (
	errRunUnexpectedArguments   = errors.New(runUnexpectedArgumentsMessageConstant)
	errQueryUnexpectedArguments = errors.New(queryUnexpectedArgumentsMessageConstant)
)

// LoggerProvider supplies a zap logger instance.
type LoggerProvider func() *zap.Logger

// ConfigurationProvider returns the current job configuration.
type ConfigurationProvider func() Configuration

// DirectoryProvider opens an authenticated patron directory.
type DirectoryProvider func(executionContext context.Context, credentials sierra.Credentials) (PatronDirectory, error)

// CommandBuilder assembles the run and query commands.
type CommandBuilder struct {
	LoggerProvider        LoggerProvider
	ConfigurationProvider ConfigurationProvider
	DirectoryProvider     DirectoryProvider
	Clock                 func() time.Time
	RunIdentifier         func() string
}

// BuildRunCommand constructs the run command.
func (builder *CommandBuilder) BuildRunCommand() (*cobra.Command, error) {
	runCommand := &cobra.Command{
		Use:   runCommandUseConstant,
		Short: runCommandShortDescriptionConstant,
		Long:  runCommandLongDescriptionConstant,
		RunE:  builder.runMigration,
	}

	runCommand.Flags().Bool(applyFlagNameConstant, false, applyFlagDescriptionConstant)
	runCommand.Flags().Bool(continueOnErrorFlagNameConstant, false, continueOnErrorFlagDescriptionConstant)
	runCommand.Flags().String(metricsFileFlagNameConstant, "", metricsFileFlagDescriptionConstant)
	runCommand.Flags().Int(batchSizeFlagNameConstant, 0, batchSizeFlagDescriptionConstant)

	return runCommand, nil
}

// BuildQueryCommand constructs the query command.
func (builder *CommandBuilder) BuildQueryCommand() (*cobra.Command, error) {
	queryCommand := &cobra.Command{
		Use:   queryCommandUseConstant,
		Short: queryCommandShortDescriptionConstant,
		Long:  queryCommandLongDescriptionConstant,
		RunE:  builder.printQuery,
	}

	queryCommand.Flags().Int(juvenilePTypeFlagNameConstant, 0, juvenilePTypeFlagDescriptionConstant)
	queryCommand.Flags().Int(adultAgeFlagNameConstant, 0, adultAgeFlagDescriptionConstant)
	if requiredError := queryCommand.MarkFlagRequired(juvenilePTypeFlagNameConstant); requiredError != nil {
		return nil, requiredError
	}

	return queryCommand, nil
}

func (builder *CommandBuilder) runMigration(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errRunUnexpectedArguments
	}

	configuration, configurationError := builder.parseRunConfiguration(command)
	if configurationError != nil {
		return configurationError
	}
	if validationError := configuration.Validate(); validationError != nil {
		return validationError
	}

	logger := builder.resolveLogger()
	directory, directoryError := builder.resolveDirectory(command.Context(), configuration.Credentials())
	if directoryError != nil {
		return fmt.Errorf(sessionErrorTemplateConstant, directoryError)
	}

	var runMetrics *RunMetrics
	if len(configuration.MetricsFile) > 0 {
		runMetrics = NewRunMetrics()
	}

	service, serviceError := NewService(ServiceDependencies{
		Logger:        logger,
		Directory:     directory,
		Metrics:       runMetrics,
		Clock:         builder.Clock,
		RunIdentifier: builder.RunIdentifier,
	})
	if serviceError != nil {
		return serviceError
	}

	var commandErrors *multierror.Error
	_, executionError := service.Execute(command.Context(), configuration.RunOptions())
	if executionError != nil {
		commandErrors = multierror.Append(commandErrors, fmt.Errorf(runExecutionErrorTemplateConstant, executionError))
	}

	if runMetrics != nil {
		if writeError := runMetrics.WriteTextfile(configuration.MetricsFile); writeError != nil {
			commandErrors = multierror.Append(commandErrors, fmt.Errorf(metricsWriteErrorTemplateConstant, configuration.MetricsFile, writeError))
		} else {
			logger.Debug(metricsWrittenMessageConstant, zap.String(metricsFileFieldNameConstant, configuration.MetricsFile))
		}
	}

	if commandErrors != nil && len(commandErrors.Errors) == 1 {
		return commandErrors.Errors[0]
	}
	return commandErrors.ErrorOrNil()
}

func (builder *CommandBuilder) parseRunConfiguration(command *cobra.Command) (Configuration, error) {
	configuration := builder.resolveConfiguration()

	if command.Flags().Changed(applyFlagNameConstant) {
		applyValue, applyFlagError := command.Flags().GetBool(applyFlagNameConstant)
		if applyFlagError != nil {
			return Configuration{}, applyFlagError
		}
		configuration.ApplyChanges = applyValue
	}

	if command.Flags().Changed(continueOnErrorFlagNameConstant) {
		continueValue, continueFlagError := command.Flags().GetBool(continueOnErrorFlagNameConstant)
		if continueFlagError != nil {
			return Configuration{}, continueFlagError
		}
		configuration.ContinueOnError = continueValue
	}

	metricsFileValue, metricsFileFlagError := command.Flags().GetString(metricsFileFlagNameConstant)
	if metricsFileFlagError != nil {
		return Configuration{}, metricsFileFlagError
	}
	configuration.MetricsFile = selectStringValue(metricsFileValue, configuration.MetricsFile)

	if command.Flags().Changed(batchSizeFlagNameConstant) {
		batchSizeValue, batchSizeFlagError := command.Flags().GetInt(batchSizeFlagNameConstant)
		if batchSizeFlagError != nil {
			return Configuration{}, batchSizeFlagError
		}
		configuration.BatchSize = batchSizeValue
	}

	return configuration, nil
}

func (builder *CommandBuilder) printQuery(command *cobra.Command, arguments []string) error {
	if len(arguments) > 0 {
		return errQueryUnexpectedArguments
	}

	configuration := builder.resolveConfiguration()

	juvenilePType, juvenilePTypeFlagError := command.Flags().GetInt(juvenilePTypeFlagNameConstant)
	if juvenilePTypeFlagError != nil {
		return juvenilePTypeFlagError
	}
	if juvenilePType < 0 {
		return ConfigurationError{Field: juvenilePTypeFlagNameConstant, Message: queryNegativePTypeMessageConstant}
	}

	adultAge := configuration.AdultAge
	if command.Flags().Changed(adultAgeFlagNameConstant) {
		adultAgeValue, adultAgeFlagError := command.Flags().GetInt(adultAgeFlagNameConstant)
		if adultAgeFlagError != nil {
			return adultAgeFlagError
		}
		adultAge = adultAgeValue
	}
	if adultAge <= 0 {
		return ConfigurationError{Field: adultAgeConfigurationKeyConstant, Message: positiveIntegerMessageConstant}
	}

	minimumAdultBirthdate := MinimumAdultBirthdate(builder.resolveClock()(), adultAge)
	query := sierra.PatronTypeBornByQuery(juvenilePType, minimumAdultBirthdate)

	encodedQuery, encodingError := json.MarshalIndent(query, "", queryIndentConstant)
	if encodingError != nil {
		return fmt.Errorf(queryEncodingErrorTemplateConstant, encodingError)
	}

	_, printError := fmt.Fprintln(command.OutOrStdout(), string(encodedQuery))
	return printError
}

func (builder *CommandBuilder) resolveLogger() *zap.Logger {
	if builder.LoggerProvider == nil {
		return zap.NewNop()
	}

	logger := builder.LoggerProvider()
	if logger == nil {
		return zap.NewNop()
	}

	return logger
}

func (builder *CommandBuilder) resolveConfiguration() Configuration {
	configuration := Configuration{}
	if builder.ConfigurationProvider != nil {
		configuration = builder.ConfigurationProvider()
	}
	return configuration.Sanitize()
}

func (builder *CommandBuilder) resolveDirectory(executionContext context.Context, credentials sierra.Credentials) (PatronDirectory, error) {
	if builder.DirectoryProvider != nil {
		return builder.DirectoryProvider(executionContext, credentials)
	}
	return sierra.NewSession(executionContext, credentials, sierra.SessionOptions{})
}

func (builder *CommandBuilder) resolveClock() func() time.Time {
	if builder.Clock == nil {
		return time.Now
	}
	return builder.Clock
}

func selectStringValue(primary string, fallback string) string {
	trimmedPrimary := strings.TrimSpace(primary)
	if len(trimmedPrimary) > 0 {
		return trimmedPrimary
	}
	return strings.TrimSpace(fallback)
}
