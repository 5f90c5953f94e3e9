// Package logger - Builds the zap logger shared by the command line tools.
package logger

import (
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Config contains logging configuration.
type Config struct {
	// Level is debug, info, warn or error. Unknown levels fall back to info.
	Level string `json:"level" yaml:"level"`
	// Format is "json" or "text".
	Format string `json:"format" yaml:"format"`
	// Output is "stdout", "stderr" or a file path.
	Output string `json:"output" yaml:"output"`
}

// New creates a new logger based on configuration.
//
// Arguments:
//   - cfg: The logging configuration.
//
// Returns:
//   - *zap.Logger: The logger. Callers should Sync it before exiting.
//   - error: An error if the output cannot be opened.
func New(cfg Config) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		level = zapcore.InfoLevel
	}

	var (
		config        zap.Config
		encoderConfig zapcore.EncoderConfig
	)
	if cfg.Format == "json" {
		config = zap.NewProductionConfig()
		encoderConfig = zap.NewProductionEncoderConfig()
		config.Encoding = "json"
	} else {
		config = zap.NewDevelopmentConfig()
		encoderConfig = zap.NewDevelopmentEncoderConfig()
		config.Encoding = "console"
	}

	encoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	encoderConfig.EncodeLevel = zapcore.LowercaseLevelEncoder
	encoderConfig.EncodeCaller = zapcore.ShortCallerEncoder
	config.EncoderConfig = encoderConfig
	config.Level = zap.NewAtomicLevelAt(level)

	output := cfg.Output
	if output == "" {
		output = "stdout"
	}
	config.OutputPaths = []string{output}
	config.ErrorOutputPaths = []string{output}

	return config.Build(
		zap.AddCaller(),
		zap.AddStacktrace(zapcore.ErrorLevel),
	)
}
