package app

import (
	"os"

	"github.com/dshills/mdsync/internal/config"
	"github.com/dshills/mdsync/internal/logging"
)

// newLogger builds the process logger from the options. An explicit level
// or Debug pins the level; otherwise it follows the logging.level setting
// once the configuration is loaded.
func newLogger(opts Options) *logging.Logger {
	out := opts.LogOutput
	if out == nil {
		out = os.Stderr
	}
	cfg := logging.DefaultConfig()
	cfg.Output = out
	cfg.Level = logging.ParseLevel(opts.LogLevel)
	if opts.Debug {
		cfg.Level = logging.LevelDebug
	}
	return logging.New(cfg)
}

// levelPinned reports whether the command line fixed the log level.
func (app *Application) levelPinned() bool {
	return app.opts.Debug || app.opts.LogLevel != ""
}

// followLogLevel keeps the logger level in sync with the logging.level
// setting.
func (app *Application) followLogLevel() *config.Subscription {
	if app.levelPinned() {
		return nil
	}
	app.logger.SetLevel(app.config.LogLevel())
	return app.config.Subscribe(config.KeyLogLevel, func(config.Change) {
		level := app.config.LogLevel()
		app.logger.SetLevel(level)
		app.logger.Info("log level set to %s", level)
	})
}

// Logger returns the application's logger.
func (app *Application) Logger() *logging.Logger {
	return app.logger
}

// logComponentError logs an error from a specific component.
func (app *Application) logComponentError(component string, err error) {
	if err == nil {
		return
	}
	app.logger.WithComponent(component).Error("%v", err)
}
