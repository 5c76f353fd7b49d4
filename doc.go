// Package btcspv implements a light-client verifier core for Bitcoin-family
// proof-of-work chains (Bitcoin, Litecoin, Dogecoin, Zcash).
//
// The core validates 80-byte block headers submitted by an untrusted
// relayer, tracks the heaviest known chain and a bounded set of competing
// forks, performs reorganizations, and answers Merkle inclusion queries. It
// is meant to run embedded inside a sandboxed smart-contract host: it never
// touches the network and never runs a background goroutine. The host is
// responsible for calling SubmitBlocks and the queries synchronously and for
// rolling back all state on error.
package btcspv
