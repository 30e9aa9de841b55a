package progress

import "context"

// Sink consumes batches of journal entries. Implementations must be safe for
// repeated calls and honor ctx deadlines.
type Sink interface {
	Consume(ctx context.Context, batch []Entry) error
	Close(ctx context.Context) error
}

// Emitter publishes individual entries; Journal satisfies it.
type Emitter interface {
	Emit(e Entry)
}
