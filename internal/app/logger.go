package app

import "github.com/charlesng35/learnhub/pkg/logger"

// ConfigureLogging installs the server logger described by the server block.
func (c ServerConfig) ConfigureLogging() error {
	return logger.Init(c.LogLevel, c.LogFormat)
}
