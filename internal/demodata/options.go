package demodata

import "github.com/okian/slarisk/pkg/logger"

type options struct {
	logger logger.Logger
}

// Option configures Generate and NewReplayer.
type Option func(*options)

// WithLogger sets the logger for progress reports.
func WithLogger(l logger.Logger) Option {
	return func(o *options) {
		if l != nil {
			o.logger = l
		}
	}
}

func applyOptions(opts []Option) options {
	o := options{logger: logger.NewNop()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}
