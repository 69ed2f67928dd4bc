/*
Package coordinator admits clients into the computation one session at a time.

The Coordinator composes the waiting line, the session registry and the port pool under a
single lock, so no caller ever observes an identifier both queued and active, nor a half
allocated port block. Slow work (talking to the parties, the ledger) happens outside the lock.

# Lifecycle

	Absent -> Queued -> Active -> Absent

Queued becomes Active only through head promotion, either on a position poll or on the
periodic sweep. Active becomes Absent through FinishComputation or eviction by the sweep.
*/
package coordinator
