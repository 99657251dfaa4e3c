package repository

// Option applies a configuration option to a store.
type Option func(*options)

type options struct {
	codec Codec
}

func defaultOptions() options {
	return options{codec: ColumnarCodec{}}
}

// WithCodec sets the codec used for newly written sample blobs. Records keep
// the name of the codec that wrote them, so existing rows stay readable
// after a change.
func WithCodec(c Codec) Option {
	return func(o *options) {
		if c != nil {
			o.codec = c
		}
	}
}
