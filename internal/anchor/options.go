package anchor

import "log/slog"

type options struct {
	logger *slog.Logger
}

// Option configures an anchor.
type Option func(*options)

// WithLogger sets the logger used for diagnostics. The default is
// slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func buildOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
