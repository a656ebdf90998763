// Package netio provides raw socket abstractions for BFD packet I/O.
//
// The Linux-specific implementation uses golang.org/x/sys/unix for the
// single-hop UDP listener on port 3784 (RFC 5881), including GTSM TTL
// validation and IP_PKTINFO/IPV6_RECVPKTINFO ancillary data.
package netio
