// Package coordinator is the single component allowed to talk to the
// classification service.
//
// Page probes and UI surfaces send it ScanRequests. For every (tab, URL)
// pair at most one classification call is in flight:
//
//   - a request for the same tab and the same URL joins the pending call and
//     receives the same result
//   - a request for the same tab and a different URL supersedes the pending
//     call: its context is cancelled and its waiters receive
//     model.ErrSuperseded
//
// A result is accepted only if the tab still shows the URL it was computed
// for. Accepted results run through the post-verdict pipeline (badge, scan
// log, subscriber notification) in acceptance order. Failed scans never
// change a badge.
//
// Handle exposes the coordinator as a message endpoint for transports.
package coordinator
