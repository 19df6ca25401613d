package cli

import (
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/briantomko/OpenMDAO/internal/app"
)

// ExitError is an error carrying a specific process exit code.
type ExitError struct {
	Code    int
	Message string
}

func (e *ExitError) Error() string {
	return e.Message
}

func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// Parse processes command-line arguments. It returns a populated app config,
// a flag indicating a clean early exit (help or no model), or an ExitError.
func Parse(args []string, output io.Writer) (*app.Config, bool, error) {
	flagSet := flag.NewFlagSet("omdao", flag.ContinueOnError)
	flagSet.SetOutput(output)

	flagSet.Usage = func() {
		fmt.Fprint(output, `
omdao - evaluate a model of connected components and its derivatives.

Usage:
  omdao [options] [MODEL_PATH]

Arguments:
  MODEL_PATH
    Path to a single .hcl model file or a directory containing .hcl files.

Options:
`)
		flagSet.PrintDefaults()
	}

	modelFlag := flagSet.String("model", "", "Path to the model file or directory.")
	mFlag := flagSet.String("m", "", "Path to the model file or directory (shorthand).")
	paramsFlag := flagSet.String("params", "", "Comma-separated parameter names for the derivative query.")
	unknownsFlag := flagSet.String("unknowns", "", "Comma-separated unknown names for the derivative query.")
	modeFlag := flagSet.String("mode", "", "Derivative mode. Options: 'fwd', 'rev', or 'fd'. Empty skips derivatives.")
	includeFlag := flagSet.String("include", "", "Comma-separated glob patterns of names to record.")
	excludeFlag := flagSet.String("exclude", "", "Comma-separated glob patterns of names to skip.")
	logFormatFlag := flagSet.String("log-format", "text", "Log output format. Options: 'text' or 'json'.")
	logLevelFlag := flagSet.String("log-level", "info", "Logging level. Options: 'debug', 'info', 'warn', 'error'.")

	if err := flagSet.Parse(args); err != nil {
		if err == flag.ErrHelp {
			return nil, true, nil
		}
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}

	path := ""
	if *modelFlag != "" {
		path = *modelFlag
	} else if *mFlag != "" {
		path = *mFlag
	} else if flagSet.NArg() > 0 {
		path = flagSet.Arg(0)
	}
	if path == "" {
		flagSet.Usage()
		return nil, true, nil
	}

	logFormat := strings.ToLower(*logFormatFlag)
	if logFormat != "text" && logFormat != "json" {
		return nil, false, &ExitError{Code: 2, Message: "invalid log-format: must be 'text' or 'json'"}
	}
	logLevel := strings.ToLower(*logLevelFlag)
	switch logLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, false, &ExitError{Code: 2, Message: "invalid log-level: must be 'debug', 'info', 'warn', or 'error'"}
	}

	cfg, err := app.NewConfig(app.Config{
		ModelPath: path,
		LogFormat: logFormat,
		LogLevel:  logLevel,
		Params:    splitList(*paramsFlag),
		Unknowns:  splitList(*unknownsFlag),
		Mode:      strings.ToLower(*modeFlag),
		Include:   splitList(*includeFlag),
		Exclude:   splitList(*excludeFlag),
	})
	if err != nil {
		return nil, false, &ExitError{Code: 2, Message: err.Error()}
	}
	return cfg, false, nil
}
