// Package command defines the closed inbound command set, its
// acknowledgement envelope, and the dispatcher that pairs every command
// with exactly one ack. The shipped transport frames commands as
// newline-delimited JSON over stdio.
package command
