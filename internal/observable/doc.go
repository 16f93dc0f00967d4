// Package observable implements the narrow "value changed, fire once" contract
// the anchor engine relies on: signals, single observable values and an
// observable map that coalesces changes made inside a batch into a single
// notification.
//
// Nothing here is safe for concurrent use. Callers serialise access the same
// way they serialise the scene the observables describe.
package observable
