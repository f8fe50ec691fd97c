package config

import (
	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
)

// ConfigureLogging applies the logging section to commonlog. Verbosity 0
// logs notices and above, 1 adds info, 2 adds debug; negative values
// silence progressively down to -4 (nothing). An empty file logs to
// stderr.
func (c *Config) ConfigureLogging() {
	commonlog.Initialize(c.Logging.Verbosity, c.Logging.File)
}

// MaxLevel returns the most verbose level the logging section enables.
func (c *Config) MaxLevel() commonlog.Level {
	return commonlog.VerbosityToMaxLevel(c.Logging.Verbosity)
}
