/*
Package domain contains the core models of the mpcgate admission system.

It defines the entities exchanged between the coordinator, the computation parties and
the clients. This package is kept free of I/O and persistence so it can be shared by every
adapter.

# Key Entities

  - PortBlock: A contiguous range of network ports reserved for one session.
  - QueueEntry: A client waiting in line for its turn.
  - Session: The active admission of one client, bound to a credential and a port block.
  - Contribution: A record of a client that successfully shared data.
  - LifecycleHooks: Callbacks fired on admission, promotion, eviction, retirement and dispatch.
*/
package domain
