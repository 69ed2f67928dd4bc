// Package admission holds the building blocks of the admission core: the port pool, the
// FIFO waiting line, the session registry and the QueueManager that composes them.
//
// None of these types are safe for concurrent use. They are owned by a single
// coordinator, which serializes every call under one lock so that compound steps
// (promote = dequeue + allocate + mint credential) are never observed half-done.
package admission
