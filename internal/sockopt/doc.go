// Package sockopt holds the raw-socket helpers the connection manager needs
// and the net package does not expose.
package sockopt
