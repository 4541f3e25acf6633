/*
File Name:  exit.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package main

// Exit codes signal why the daemon exited.
const (
	ExitSuccess           = 0
	ExitErrorConfigAccess = 1 // Error accessing the config file.
	ExitErrorConfigParse  = 2 // Error parsing the config file.
	ExitErrorPersistOpen  = 3 // Error opening the persistence backend.
	ExitErrorPersistLoad  = 4 // Error loading a corrupt persisted address book.
	ExitGraceful          = 5 // Graceful shutdown.
)
