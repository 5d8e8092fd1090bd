// Command bookstore runs the bookstore multi-agent simulation.
package main

import (
	"fmt"
	"os"

	"github.com/GoCodeAlone/bookstore/internal/version"
)

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(1)
	}
	cmd, rest := os.Args[1], os.Args[2:]

	var err error
	switch cmd {
	case "run":
		err = cmdRun(rest)
	case "serve":
		err = cmdServe(rest)
	case "inspect":
		err = cmdInspect(rest)
	case "status":
		err = cmdStatus(rest)
	case "pause", "resume", "stop":
		err = cmdControl(cmd, rest)
	case "version":
		fmt.Println("bookstore " + version.String())
	case "help", "-h", "--help":
		usage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n", cmd)
		usage()
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprint(os.Stderr, `bookstore: bookstore multi-agent simulation

Usage:
  bookstore <command> [flags]

Commands:
  run        run a simulation to completion and print the summary
  serve      run a paced simulation behind the reporting server
  inspect    print the catalog and population a config would create
  status     show the state of a running server
  pause      pause a running server's simulation
  resume     resume a paused simulation
  stop       stop a running server's simulation
  version    print version

Run flags:
  -config <file>     YAML config (defaults apply when omitted)
  -customers <n>     customer count (1-50)
  -employees <n>     employee count (1-10)
  -steps <n>         step count (10-1000)
  -seed <n>          random seed
  -policy <name>     purchase policy: preference or impulse
  -output <file>     write the export record as JSON
  -db <file>         save the export record to SQLite

Serve adds:
  -addr <addr>       listen address (default :8050)
  -interval <dur>    wall time between steps

Client flags (status, pause, resume, stop):
  -server <url>      server URL (default http://localhost:8050)
  -token <token>     JWT auth token (or $BOOKSTORE_TOKEN)
`)
}
