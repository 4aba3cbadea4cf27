// Package observability records the conductor's event trail as JSON Lines
// and derives metrics and alerts from it. It also builds the process logger.
package observability
