/*
File Name:  main.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

addrbookd runs a standalone address book with a periodic persistence
ticker and a read-only introspection API, the ambient daemon shell around
the addrbook core.
*/

package main

import (
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/gossipmesh/addrbook"
	"github.com/gossipmesh/addrbook/diskstore"
	"github.com/gossipmesh/addrbook/httpapi"
)

func main() {
	status, err := LoadConfig("Config.yaml")
	if err != nil {
		log.Printf("error loading config: %v\n", err)
		if status == 2 {
			os.Exit(ExitErrorConfigParse)
		}
		os.Exit(ExitErrorConfigAccess)
	}
	if status != 3 {
		os.Exit(ExitErrorConfigParse)
	}

	store, err := openStore()
	if err != nil {
		log.Printf("error opening persistence backend: %v\n", err)
		os.Exit(ExitErrorPersistOpen)
	}
	defer store.Close()

	book := addrbook.NewBook(addrbook.Config{
		Deterministic:         config.Deterministic,
		ConsistencyCheckRatio: config.ConsistencyCheckRatio,
	})

	if found, err := diskstore.Load(store, book); err != nil {
		log.Printf("error loading persisted address book: %v\n", err)
		os.Exit(ExitErrorPersistLoad)
	} else if found {
		newCount, triedCount := book.Size()
		log.Printf("loaded address book: %d new, %d tried\n", newCount, triedCount)
	}

	api := httpapi.New(book)
	api.Start(config.Listen, 10*time.Second, 10*time.Second)

	interval := time.Duration(config.PersistIntervalSeconds) * time.Second
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, os.Interrupt, syscall.SIGTERM)

	for {
		select {
		case <-ticker.C:
			if err := diskstore.Save(store, book); err != nil {
				log.Printf("error persisting address book: %v\n", err)
			}
		case <-sig:
			log.Println("shutting down, persisting address book")
			if err := diskstore.Save(store, book); err != nil {
				log.Printf("error persisting address book: %v\n", err)
			}
			os.Exit(ExitGraceful)
		}
	}
}

func openStore() (diskstore.Store, error) {
	if err := os.MkdirAll(config.DataPath, 0755); err != nil {
		return nil, err
	}
	switch config.PersistBackend {
	case "pogreb":
		return diskstore.NewPogrebStore(filepath.Join(config.DataPath, "addrbook.pogreb"))
	default:
		return diskstore.NewFileStore(config.DataPath)
	}
}
