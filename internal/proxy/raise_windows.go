//go:build windows

package proxy

import "os"

// Windows cannot re-deliver console signals to itself.
func raiseSelf(os.Signal) { os.Exit(1) }
