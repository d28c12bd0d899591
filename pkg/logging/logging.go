// Package logging provides a minimal hierarchical logger used throughout
// the sync engine. It mirrors the standard library's log package in
// behavior but adds named subloggers and level gating.
package logging

import (
	"log"
	"os"
)

func init() {
	log.SetOutput(os.Stdout)
}
