package repository

// Default key column names.
const (
	DefaultTrackingColumn     = "Airbill Number/BOL Number"
	DefaultServiceLevelColumn = "Service Level"
)

type options struct {
	trackingColumn     string
	serviceLevelColumn string
	sync               bool
}

func defaultOptions() options {
	return options{
		trackingColumn:     DefaultTrackingColumn,
		serviceLevelColumn: DefaultServiceLevelColumn,
		sync:               true,
	}
}

// Option applies a configuration option to a source or sink.
type Option func(*options)

// WithTrackingColumn sets the header name of the tracking id column.
func WithTrackingColumn(name string) Option {
	return func(o *options) {
		if name != "" {
			o.trackingColumn = name
		}
	}
}

// WithServiceLevelColumn sets the header name of the service level column.
func WithServiceLevelColumn(name string) Option {
	return func(o *options) {
		if name != "" {
			o.serviceLevelColumn = name
		}
	}
}

// WithSync controls whether the CSV sink fsyncs after every row.
func WithSync(enabled bool) Option {
	return func(o *options) {
		o.sync = enabled
	}
}
