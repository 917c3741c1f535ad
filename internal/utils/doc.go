// Package utils exposes reusable helpers consumed by the CLI commands.
//
// It houses the ConfigurationLoader, which merges embedded defaults, an
// optional configuration file, and environment variables through Viper, and
// the LoggerFactory, which builds zap loggers for the requested level and
// encoding.
package utils
