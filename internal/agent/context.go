package agent

import "context"

type snapshotKey struct{}

// WithConversationSnapshot attaches the serialized conversation history to a
// turn context. Tools that persist the snapshot read it from here, so the
// stored record never depends on the model echoing the history back.
func WithConversationSnapshot(ctx context.Context, snapshot string) context.Context {
	return context.WithValue(ctx, snapshotKey{}, snapshot)
}

// ConversationSnapshot returns the snapshot attached to the turn context, or
// an empty string when the caller supplied none.
func ConversationSnapshot(ctx context.Context) string {
	s, _ := ctx.Value(snapshotKey{}).(string)
	return s
}
