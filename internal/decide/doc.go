// Package decide holds the pure classification logic that maps probed stream
// metadata plus policy to a SKIP, REPACK, or TRANSCODE decision with concrete
// encode plans. It performs no I/O so decisions can be exhaustively tested
// against fixture tables.
package decide
