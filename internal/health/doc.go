// Package health provides composable probes and the HTTP handlers behind
// /-/healthy and /-/ready.
//
// [All] and [Any] combine probes, [Fixed] is a constant, [CheckFunc] adapts
// a function. [StoreProbe] checks that the content chain can serve a page.
// [ShutdownGate] fails readiness during drain so load balancers stop
// routing before the listener closes.
package health
