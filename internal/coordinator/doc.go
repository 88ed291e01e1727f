// Package coordinator wires every other internal package into one
// running broker: the session registry, the adapter resolver, the five
// policy services, the consumer transport hub, storage, and the bridge
// facade that ties them together. It is the one place that knows about
// all of them at once; every other package only knows the narrow
// interfaces its neighbors expose.
package coordinator
