// Package cli constructs the sierra-ptype command-line interface. It loads the
// job configuration from the embedded defaults, an optional .env, YAML or JSON
// file and the environment, builds the zap logger, and registers the run and
// query commands.
package cli
