// Package model defines the value types shared by the portpool packages:
// reservations handed to callers, ports published by Docker containers, and
// the CLI's exit codes with the CLIError type that carries them.
//
// The package has no dependencies beyond the standard library.
package model
