/*
Package ports defines the driven ports (interfaces) of the coordinator and the party server.

These interfaces decouple the admission core from the outside world: durable contribution
bookkeeping, the computation parties, the external tools and the commitment archive.

# Key Interfaces

  - ContributionLedger: Remembers who already shared data (Memory or Redis).
  - PartyClient: Forwards session-consuming calls to one computation party (HTTP).
  - ProcessRunner: Invokes an allow-listed external tool (MPC engine, notary verifier, prover).
  - CommitmentArchive: Keeps the data commitments a party produced (Loam or Memory).
*/
package ports
