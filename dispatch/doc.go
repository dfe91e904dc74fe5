// Package dispatch orchestrates calls across the boundary for one session.
//
// Inbound calls follow resolve → marshal → invoke → report:
//
//	out, err := d.Invoke(ctx, dispatch.Request{ModuleID: "M", MethodID: "Add", Args: "[2,3]"})
//	d.BeginInvoke(ctx, dispatch.Request{ModuleID: "M", MethodID: "Fetch", Args: `["a"]`}, "17")
//
// BeginInvoke never blocks on the invoked method's pending operation; the
// completion report is delivered through Host.EndInvoke once it settles.
//
// Outbound calls register a pending future under a fresh correlation id and
// ask the Host to run the call; EndInvoke later resolves the future:
//
//	title, err := dispatch.InvokeAs[string](ctx, d, "document.getTitle")
//
// Each Dispatcher owns its reference table and pending-call table. Close
// releases both.
package dispatch
