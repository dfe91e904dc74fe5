package dispatch

import "context"

// Host is the other side of the boundary as seen by a Dispatcher.
//
// Implementations carry calls and reports over whatever channel connects the
// two runtimes; the dispatcher does not care about framing or transport.
type Host interface {
	// BeginInvoke asks the host to run identifier with the JSON argument
	// array argsJSON. The host must eventually answer with a completion
	// report for callID through Dispatcher.EndInvoke. A returned error means
	// the call could not be delivered.
	BeginInvoke(ctx context.Context, callID int64, identifier, argsJSON string) error

	// EndInvoke delivers the completion report of an inbound asynchronous
	// call that carried correlationID.
	EndInvoke(ctx context.Context, correlationID, report string)
}
