package cli

import (
	_ "embed"

	"github.com/temirov/sierra-ptype/internal/ptypes"
	"github.com/temirov/sierra-ptype/internal/utils"
)

//go:embed default_config.yaml
var defaultConfigurationContent []byte

// defaultConfigurationValues registers every key the CLI understands. Viper
// only resolves environment variables for keys it already knows.
func defaultConfigurationValues() map[string]any {
	defaultValues := map[string]any{
		logLevelConfigKeyConstant:  string(utils.LogLevelInfo),
		logFormatConfigKeyConstant: string(utils.LogFormatConsole),
	}
	for configurationKey, configurationValue := range ptypes.DefaultConfigurationValues() {
		defaultValues[configurationKey] = configurationValue
	}
	return defaultValues
}
