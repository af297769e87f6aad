package observability

import (
	"io"
	"log/slog"
	"os"
	"regexp"

	"github.com/fairyhunter13/airdrop-analyzer/internal/config"
)

// SetupLogger configures a JSON slog logger with environment fields.
func SetupLogger(cfg config.Config) *slog.Logger {
	return newLogger(os.Stdout, cfg)
}

func newLogger(w io.Writer, cfg config.Config) *slog.Logger {
	opts := &slog.HandlerOptions{ReplaceAttr: redactAttr}
	// Dev logs every orchestration step; other envs log transitions at info.
	if cfg.IsDev() {
		opts.Level = slog.LevelDebug
	}
	return slog.New(slog.NewJSONHandler(w, opts)).With(
		slog.String("service", cfg.OTELServiceName),
		slog.String("env", cfg.AppEnv),
	)
}

var secretRe = regexp.MustCompile(`sk-or-v1-[A-Za-z0-9]+`)

// redactAttr keeps raw credentials out of log lines, e.g. when an upstream
// error message echoes the key back.
func redactAttr(_ []string, a slog.Attr) slog.Attr {
	if a.Value.Kind() != slog.KindString {
		return a
	}
	if s := a.Value.String(); secretRe.MatchString(s) {
		a.Value = slog.StringValue(secretRe.ReplaceAllString(s, "sk-or-v1-[redacted]"))
	}
	return a
}

// ModelAttrs groups the attributes logged on every orchestration step.
func ModelAttrs(logical, concrete string, attempt int) slog.Attr {
	return slog.Group("model",
		slog.String("logical", logical),
		slog.String("concrete", concrete),
		slog.Int("attempt", attempt),
	)
}
