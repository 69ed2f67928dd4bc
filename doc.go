/*
Package mpcgate coordinates computation parties that jointly run a secure multiparty
computation (MPC) engine over data contributed by many untrusted clients.

Clients are serialized through an admission queue. The client at the head of the line is
promoted into a session: it receives a computation key and an exclusive block of network
ports, which the parties use to run the engine for that client alone. A head that never
uses its session is evicted after a timeout so the line keeps moving.

# Layout

  - pkg/coordinator: the admission facade (queue, sessions, port pool) and the party fan-out.
  - pkg/party: the party side, running the external engine through allow-listed tools.
  - pkg/client: the client flows (queue, wait for turn, share or query, finish).
  - pkg/adapters: HTTP, MCP, Redis, loam, memory and process adapters.
  - cmd/mpcgate: the binary with the coord, party, client, queue and mcp commands.

# Usage

Embedding a coordinator in-process:

	c, err := coordinator.New(ctx, coordinator.Config{
		PortsStart:   8010,
		PortsEnd:     8100,
		BlockSize:    6,
		MaxQueueSize: 1000,
		HeadTimeout:  time.Minute,
	}, coordinator.WithParties(parties...))
	if err != nil {
		log.Fatal(err)
	}
	go c.Run(ctx, time.Second)

	http.ListenAndServe(":8005", mpchttp.NewHandler(c))
*/
package mpcgate
