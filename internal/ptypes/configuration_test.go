package ptypes_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/temirov/sierra-ptype/internal/ptypes"
)

func validConfiguration() ptypes.Configuration {
	return ptypes.Configuration{
		ClientID:       "client",
		ClientSecret:   "secret",
		BaseURL:        "https://catalog.example.org/iii/sierra-api/v6/",
		BatchSize:      50,
		AdultAge:       18,
		JuvenilePTypes: []int{10, 11},
		AdultPTypes:    []int{15, 16},
	}
}

func TestConfigurationValidate(testInstance *testing.T) {
	testCases := []struct {
		name           string
		mutate         func(*ptypes.Configuration)
		expectedFields []string
	}{
		{
			name:   "valid",
			mutate: func(*ptypes.Configuration) {},
		},
		{
			name: "mismatched_pairs",
			mutate: func(configuration *ptypes.Configuration) {
				configuration.AdultPTypes = []int{15}
			},
			expectedFields: []string{"juvenile_ptypes"},
		},
		{
			name: "missing_credentials",
			mutate: func(configuration *ptypes.Configuration) {
				configuration.ClientID = " "
				configuration.ClientSecret = ""
			},
			expectedFields: []string{"sierra_client_id", "sierra_client_secret"},
		},
		{
			name: "non_positive_numbers",
			mutate: func(configuration *ptypes.Configuration) {
				configuration.BatchSize = 0
				configuration.AdultAge = -1
			},
			expectedFields: []string{"batch_size", "adult_age"},
		},
		{
			name: "empty_lists",
			mutate: func(configuration *ptypes.Configuration) {
				configuration.JuvenilePTypes = nil
				configuration.AdultPTypes = []int{}
			},
			expectedFields: []string{"juvenile_ptypes", "adult_ptypes"},
		},
		{
			name: "negative_ptype",
			mutate: func(configuration *ptypes.Configuration) {
				configuration.AdultPTypes = []int{15, -2}
			},
			expectedFields: []string{"adult_ptypes"},
		},
	}

	for _, testCase := range testCases {
		testInstance.Run(testCase.name, func(testInstance *testing.T) {
			configuration := validConfiguration()
			testCase.mutate(&configuration)

			validationError := configuration.Validate()
			if len(testCase.expectedFields) == 0 {
				require.NoError(testInstance, validationError)
				return
			}

			require.Error(testInstance, validationError)
			var configurationError ptypes.ConfigurationError
			require.True(testInstance, errors.As(validationError, &configurationError))
			for _, expectedField := range testCase.expectedFields {
				require.Contains(testInstance, validationError.Error(), expectedField)
			}
		})
	}
}

func TestConfigurationSanitize(testInstance *testing.T) {
	configuration := ptypes.Configuration{
		ClientID:       " client ",
		BaseURL:        " https://catalog.example.org/iii/sierra-api/v6 ",
		MetricsFile:    " /tmp/sierra.prom ",
		JuvenilePTypes: []int{10},
	}

	sanitized := configuration.Sanitize()
	require.Equal(testInstance, "client", sanitized.ClientID)
	require.Equal(testInstance, "https://catalog.example.org/iii/sierra-api/v6/", sanitized.BaseURL)
	require.Equal(testInstance, "/tmp/sierra.prom", sanitized.MetricsFile)

	sanitized.JuvenilePTypes[0] = 99
	require.Equal(testInstance, 10, configuration.JuvenilePTypes[0])

	require.Empty(testInstance, ptypes.Configuration{}.Sanitize().BaseURL)
}

func TestConfigurationPairsKeepOrder(testInstance *testing.T) {
	configuration := validConfiguration()
	configuration.JuvenilePTypes = []int{3, 1, 2}
	configuration.AdultPTypes = []int{30, 10, 20}

	require.Equal(testInstance, []ptypes.Pair{
		{Juvenile: 3, Adult: 30},
		{Juvenile: 1, Adult: 10},
		{Juvenile: 2, Adult: 20},
	}, configuration.Pairs())

	runOptions := configuration.RunOptions()
	require.Equal(testInstance, configuration.Pairs(), runOptions.Pairs)
	require.Equal(testInstance, 50, runOptions.BatchSize)
	require.False(testInstance, runOptions.ApplyChanges)
}

func TestConfigurationCredentials(testInstance *testing.T) {
	credentials := validConfiguration().Credentials()
	require.Equal(testInstance, "client", credentials.ClientID)
	require.Equal(testInstance, "secret", credentials.ClientSecret)
	require.Equal(testInstance, "https://catalog.example.org/iii/sierra-api/v6/token", credentials.TokenURL())
}

func TestDefaultConfigurationValuesCoverEveryKey(testInstance *testing.T) {
	defaults := ptypes.DefaultConfigurationValues()
	for _, expectedKey := range []string{
		"sierra_client_id", "sierra_client_secret", "sierra_base_url", "batch_size", "adult_age",
		"juvenile_ptypes", "adult_ptypes", "apply_changes", "continue_on_error", "metrics_file",
	} {
		require.Contains(testInstance, defaults, expectedKey)
	}
}
