/*
File Name:  api.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner

A small read-only introspection API over an addrbook.Book, for operators
and tests to inspect table occupancy without reaching into the process.
*/

package httpapi

import (
	"crypto/tls"
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
	"github.com/gorilla/websocket"

	"github.com/gossipmesh/addrbook"
)

// Instance is a running introspection API bound to a Book.
type Instance struct {
	Book *addrbook.Book

	// Router can be used to register additional routes before Start.
	Router *mux.Router

	events      chan Event
	subscribers map[uuid.UUID]chan Event
	subMutex    sync.Mutex
}

// WSUpgrader is used for the /status/stream websocket endpoint. It allows
// all origins, matching the teacher's debug-API posture.
var WSUpgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		return true
	},
}

// New builds an Instance around book, wiring its routes.
func New(book *addrbook.Book) *Instance {
	api := &Instance{
		Book:        book,
		Router:      mux.NewRouter(),
		events:      make(chan Event, 64),
		subscribers: make(map[uuid.UUID]chan Event),
	}

	api.Router.HandleFunc("/status", api.apiStatus).Methods("GET")
	api.Router.HandleFunc("/addr/find", api.apiAddrFind).Methods("GET")
	api.Router.HandleFunc("/addr/sample", api.apiAddrSample).Methods("GET")
	api.Router.HandleFunc("/status/stream", api.apiStatusStream).Methods("GET")

	go api.fanOut()

	return api
}

// Start listens on every given address. It returns immediately; errors
// binding a listener are logged, matching startWebAPI's posture in the
// teacher's own webapi package.
func (api *Instance) Start(listenAddresses []string, readTimeout, writeTimeout time.Duration) {
	for _, listen := range listenAddresses {
		go api.listenAndServe(listen, readTimeout, writeTimeout)
	}
}

func (api *Instance) listenAndServe(listen string, readTimeout, writeTimeout time.Duration) {
	server := &http.Server{
		Addr:         listen,
		Handler:      api.Router,
		ReadTimeout:  readTimeout,
		WriteTimeout: writeTimeout,
		TLSConfig:    &tls.Config{MinVersion: tls.VersionTLS12},
	}
	log.Printf("httpapi: listening on %s", listen)
	if err := server.ListenAndServe(); err != nil {
		log.Printf("httpapi: listenAndServe %s: %v", listen, err)
	}
}

// Publish pushes an event to every connected /status/stream subscriber.
// It never blocks: a full event channel drops the event rather than stall
// the caller.
func (api *Instance) Publish(ev Event) {
	select {
	case api.events <- ev:
	default:
	}
}

func registerSubscriber(api *Instance, ch chan Event) uuid.UUID {
	id := uuid.New()
	api.subMutex.Lock()
	api.subscribers[id] = ch
	api.subMutex.Unlock()
	return id
}

func unregisterSubscriber(api *Instance, id uuid.UUID) {
	api.subMutex.Lock()
	ch, ok := api.subscribers[id]
	delete(api.subscribers, id)
	api.subMutex.Unlock()
	if ok {
		close(ch)
	}
}

func (api *Instance) fanOut() {
	for ev := range api.events {
		api.subMutex.Lock()
		for _, ch := range api.subscribers {
			select {
			case ch <- ev:
			default:
			}
		}
		api.subMutex.Unlock()
	}
}

func encodeJSON(w http.ResponseWriter, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	err := json.NewEncoder(w).Encode(data)
	if err != nil {
		log.Printf("httpapi: encodeJSON: %v", err)
	}
	return err
}

