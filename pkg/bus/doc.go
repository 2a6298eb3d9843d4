// Package bus defines the request/response contract used to reach
// components that sit behind an asynchronous boundary, and an in-process
// implementation of it.
//
// A caller sends a [Request] addressed to an owner id and waits for exactly
// one [Response] carrying the same correlation id. Requests that are not
// answered within the timeout (the earlier of the caller's context deadline
// and [DefaultTimeout]) fail with [ErrTimeout]; a response arriving later is
// dropped and logged. Progress updates travel separately, keyed by a
// progress token, so a missing progress listener never changes the result
// of a request.
//
// [Local] keeps one mailbox per owner and a pending map keyed by
// correlation id. Other transports (sockets, queues) implement the same
// [Bus] interface.
package bus
