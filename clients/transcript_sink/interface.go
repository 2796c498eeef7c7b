package transcript_sink

import "context"

// Interface forwards final transcripts to an external consumer.
type Interface interface {
	Send(ctx context.Context, text string) error
}
