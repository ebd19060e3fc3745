// Package service exposes a node's state over HTTP.
//
//  GET  /stats                    // node statistics
//  GET  /delta/latest[?asof=...]  // latest confirmed delta, optionally as of an RFC3339 time
//  GET  /delta/<cid>              // a confirmed delta
//  GET  /favourite/<cid>          // this node's favourite candidate following a delta
//  GET  /peers                    // the producers' peer set
//  POST /tx                       // submit a JSON transaction to the mempool
//  GET  /metrics                  // Prometheus metrics
package service
