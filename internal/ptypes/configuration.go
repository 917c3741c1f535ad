package ptypes

import (
	"fmt"
	"strings"

	"github.com/hashicorp/go-multierror"

	"github.com/temirov/sierra-ptype/internal/sierra"
)

const (
	clientIDConfigurationKeyConstant        = "sierra_client_id"
	clientSecretConfigurationKeyConstant    = "sierra_client_secret"
	baseURLConfigurationKeyConstant         = "sierra_base_url"
	batchSizeConfigurationKeyConstant       = "batch_size"
	adultAgeConfigurationKeyConstant        = "adult_age"
	juvenilePTypesConfigurationKeyConstant  = "juvenile_ptypes"
	adultPTypesConfigurationKeyConstant     = "adult_ptypes"
	applyChangesConfigurationKeyConstant    = "apply_changes"
	continueOnErrorConfigurationKeyConstant = "continue_on_error"
	metricsFileConfigurationKeyConstant     = "metrics_file"
	baseURLPathSeparatorConstant            = "/"
	configurationErrorTemplateConstant      = "invalid configuration %s: %s"
	configurationCauseErrorTemplateConstant = "invalid configuration %s: %s: %v"
	requiredValueMessageConstant            = "value required"
	positiveIntegerMessageConstant          = "must be a positive integer"
	nonNegativePTypeTemplateConstant        = "PType %d at position %d must not be negative"
	mismatchedPairsTemplateConstant         = "juvenile and adult PTypes must be in pairs (%d juvenile, %d adult)"
)

// Configuration is the immutable job configuration. Keys map to the
// upper-case environment variables of the same name (SIERRA_CLIENT_ID,
// BATCH_SIZE, JUVENILE_PTYPES, ...).
type Configuration struct {
	ClientID        string `mapstructure:"sierra_client_id"`
	ClientSecret    string `mapstructure:"sierra_client_secret"`
	BaseURL         string `mapstructure:"sierra_base_url"`
	BatchSize       int    `mapstructure:"batch_size"`
	AdultAge        int    `mapstructure:"adult_age"`
	JuvenilePTypes  []int  `mapstructure:"juvenile_ptypes"`
	AdultPTypes     []int  `mapstructure:"adult_ptypes"`
	ApplyChanges    bool   `mapstructure:"apply_changes"`
	ContinueOnError bool   `mapstructure:"continue_on_error"`
	MetricsFile     string `mapstructure:"metrics_file"`
}

// ConfigurationError reports a missing, malformed, or inconsistent setting.
type ConfigurationError struct {
	Field   string
	Message string
	Cause   error
}

// Error describes the configuration problem.
func (configurationError ConfigurationError) Error() string {
	if configurationError.Cause != nil {
		return fmt.Sprintf(configurationCauseErrorTemplateConstant, configurationError.Field, configurationError.Message, configurationError.Cause)
	}
	return fmt.Sprintf(configurationErrorTemplateConstant, configurationError.Field, configurationError.Message)
}

// Unwrap exposes the underlying cause.
func (configurationError ConfigurationError) Unwrap() error {
	return configurationError.Cause
}

// Pair maps a juvenile PType to its adult equivalent.
type Pair struct {
	Juvenile int
	Adult    int
}

// DefaultConfigurationValues registers every configuration key so that
// environment variables are honored even when no file mentions the key.
func DefaultConfigurationValues() map[string]any {
	return map[string]any{
		clientIDConfigurationKeyConstant:        "",
		clientSecretConfigurationKeyConstant:    "",
		baseURLConfigurationKeyConstant:         "",
		batchSizeConfigurationKeyConstant:       0,
		adultAgeConfigurationKeyConstant:        0,
		juvenilePTypesConfigurationKeyConstant:  "",
		adultPTypesConfigurationKeyConstant:     "",
		applyChangesConfigurationKeyConstant:    false,
		continueOnErrorConfigurationKeyConstant: false,
		metricsFileConfigurationKeyConstant:     "",
	}
}

// Sanitize trims string values and makes sure the base URL ends with a slash,
// since endpoint paths are appended to it verbatim.
func (configuration Configuration) Sanitize() Configuration {
	sanitized := configuration
	sanitized.ClientID = strings.TrimSpace(configuration.ClientID)
	sanitized.ClientSecret = strings.TrimSpace(configuration.ClientSecret)
	sanitized.BaseURL = strings.TrimSpace(configuration.BaseURL)
	if len(sanitized.BaseURL) > 0 && !strings.HasSuffix(sanitized.BaseURL, baseURLPathSeparatorConstant) {
		sanitized.BaseURL += baseURLPathSeparatorConstant
	}
	sanitized.MetricsFile = strings.TrimSpace(configuration.MetricsFile)
	sanitized.JuvenilePTypes = append([]int(nil), configuration.JuvenilePTypes...)
	sanitized.AdultPTypes = append([]int(nil), configuration.AdultPTypes...)
	return sanitized
}

// Validate reports every problem at once. Each problem is a ConfigurationError.
func (configuration Configuration) Validate() error {
	var problems *multierror.Error

	requiredStrings := []struct {
		field string
		value string
	}{
		{field: clientIDConfigurationKeyConstant, value: configuration.ClientID},
		{field: clientSecretConfigurationKeyConstant, value: configuration.ClientSecret},
		{field: baseURLConfigurationKeyConstant, value: configuration.BaseURL},
	}
	for _, requiredString := range requiredStrings {
		if len(strings.TrimSpace(requiredString.value)) == 0 {
			problems = multierror.Append(problems, ConfigurationError{Field: requiredString.field, Message: requiredValueMessageConstant})
		}
	}

	if configuration.BatchSize <= 0 {
		problems = multierror.Append(problems, ConfigurationError{Field: batchSizeConfigurationKeyConstant, Message: positiveIntegerMessageConstant})
	}
	if configuration.AdultAge <= 0 {
		problems = multierror.Append(problems, ConfigurationError{Field: adultAgeConfigurationKeyConstant, Message: positiveIntegerMessageConstant})
	}

	if len(configuration.JuvenilePTypes) == 0 {
		problems = multierror.Append(problems, ConfigurationError{Field: juvenilePTypesConfigurationKeyConstant, Message: requiredValueMessageConstant})
	}
	if len(configuration.AdultPTypes) == 0 {
		problems = multierror.Append(problems, ConfigurationError{Field: adultPTypesConfigurationKeyConstant, Message: requiredValueMessageConstant})
	}
	if len(configuration.JuvenilePTypes) != len(configuration.AdultPTypes) {
		problems = multierror.Append(problems, ConfigurationError{
			Field:   juvenilePTypesConfigurationKeyConstant,
			Message: fmt.Sprintf(mismatchedPairsTemplateConstant, len(configuration.JuvenilePTypes), len(configuration.AdultPTypes)),
		})
	}

	problems = appendNegativePTypeProblems(problems, juvenilePTypesConfigurationKeyConstant, configuration.JuvenilePTypes)
	problems = appendNegativePTypeProblems(problems, adultPTypesConfigurationKeyConstant, configuration.AdultPTypes)

	return problems.ErrorOrNil()
}

// Pairs zips the juvenile and adult PTypes by position.
func (configuration Configuration) Pairs() []Pair {
	pairCount := len(configuration.JuvenilePTypes)
	if len(configuration.AdultPTypes) < pairCount {
		pairCount = len(configuration.AdultPTypes)
	}

	pairs := make([]Pair, 0, pairCount)
	for pairIndex := 0; pairIndex < pairCount; pairIndex++ {
		pairs = append(pairs, Pair{
			Juvenile: configuration.JuvenilePTypes[pairIndex],
			Adult:    configuration.AdultPTypes[pairIndex],
		})
	}
	return pairs
}

// Credentials returns the Sierra credentials of the configuration.
func (configuration Configuration) Credentials() sierra.Credentials {
	return sierra.Credentials{
		ClientID:     configuration.ClientID,
		ClientSecret: configuration.ClientSecret,
		BaseURL:      configuration.BaseURL,
	}
}

// RunOptions derives the service options of the configuration.
func (configuration Configuration) RunOptions() RunOptions {
	return RunOptions{
		Pairs:           configuration.Pairs(),
		AdultAge:        configuration.AdultAge,
		BatchSize:       configuration.BatchSize,
		ApplyChanges:    configuration.ApplyChanges,
		ContinueOnError: configuration.ContinueOnError,
	}
}

func appendNegativePTypeProblems(problems *multierror.Error, field string, patronTypes []int) *multierror.Error {
	for patronTypeIndex, patronType := range patronTypes {
		if patronType < 0 {
			problems = multierror.Append(problems, ConfigurationError{
				Field:   field,
				Message: fmt.Sprintf(nonNegativePTypeTemplateConstant, patronType, patronTypeIndex),
			})
		}
	}
	return problems
}
