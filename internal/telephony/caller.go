package telephony

import "context"

// Caller is the provider-agnostic contract the dispatcher places calls
// through.
//
// Rules:
// - No provider SDK or wire details outside telephony adapters.
// - One call per invocation; retry policy belongs to the caller, and the
//   dispatcher deliberately has none.
type Caller interface {
	Name() string

	// StartCall requests one outbound call to the given number and returns
	// the provider call identifier (e.g. a Twilio Call SID).
	StartCall(ctx context.Context, number string) (string, error)
}
