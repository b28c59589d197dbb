package logger

import (
	"io"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func Init(environment string, debug bool) {
	InitWithWriter(os.Stdout, environment, debug)
}

// InitWithWriter is Init with logs sent to out.
func InitWithWriter(out io.Writer, environment string, debug bool) {
	zerolog.TimeFieldFormat = time.RFC3339

	output := out

	if environment == "development" {
		output = zerolog.ConsoleWriter{
			Out:        out,
			TimeFormat: "15:04:05",
		}
	}

	level := zerolog.InfoLevel
	if debug {
		level = zerolog.DebugLevel
	}

	log.Logger = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Logger().
		Level(level)
}

func WithProviderID(providerID string) zerolog.Logger {
	return log.With().Str("provider_id", providerID).Logger()
}

func WithSync(providerID, syncType string) zerolog.Logger {
	return log.With().
		Str("provider_id", providerID).
		Str("sync_type", syncType).
		Logger()
}

func WithWorkflowID(workflowID string) zerolog.Logger {
	return log.With().Str("workflow_id", workflowID).Logger()
}

func WithExecutionID(executionID string) zerolog.Logger {
	return log.With().Str("execution_id", executionID).Logger()
}
