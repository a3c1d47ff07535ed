/*
Package cluster is the cluster transport layer: netstring-
framed JSON-RPC over mutually authenticated TLS, a method router, a
heartbeat/liveness monitor and a per-endpoint replay log.

Grounded on original_source/test/base-netstring.cpp and
test/remote-jsonrpcconnection.cpp: messages are netstring-framed
`{"jsonrpc":"2.0","method":"<namespace>::<name>","params":{...}}`
dictionaries; a peer's authenticated identity comes from its TLS client
certificate CommonName (see pkg/security.EndpointNameFromCert), never from
a claimed field in the message itself. event::Heartbeat is sent on a fixed
interval, and a connection that misses consecutive heartbeats past its
liveness timeout is disconnected, mirroring JsonRpcConnection's own
heartbeat/liveness contract.

ConnRegistry and Dispatcher (dispatcher.go) add the outbound half: a
Conn registers itself under its authenticated identity once handshaked,
and Dispatcher looks an endpoint's connection up there to send it a
one-way event::ExecuteCheck, the transport internal/scheduler's
RemoteDispatcher rides on.
*/
package cluster
