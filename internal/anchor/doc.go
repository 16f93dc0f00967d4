// Package anchor computes and caches the points where connectors attach to
// shapes.
//
// An anchor is bound to one anchorage (the shape connectors attach to) and
// tracks any number of attachments, each identified by a Key pairing the
// anchored element's id with a role such as "start" or "end". Whenever the
// anchorage or an anchored element changes its geometry, transform or scene
// presence, or a computation parameter changes, the affected keys are marked
// stale and recomputed through the anchor's Strategy. Results are published to
// an observable position map, which is the only output clients observe:
// subscribers receive one coalesced change set per notification and nothing
// for recomputations that produced the same value.
//
// Strategies read typed parameters. Static parameters are shared by all keys
// of an anchor, dynamic parameters are private to one key and are created
// with their default value the first time they are needed. Parameters can be
// bound to an observable.Value so external changes flow in automatically.
//
// Anchors are not safe for concurrent use. All calls, including scene
// notifications, must be serialised by the caller.
package anchor
