/*
File Name:  status.go
Copyright:  2021 Peernet s.r.o.
Author:     Peter Kleissner
*/

package httpapi

import (
	"encoding/hex"
	"net/http"
	"strconv"

	"github.com/gossipmesh/addrbook"
)

// Event is what Publish delivers to /status/stream subscribers. Events
// reach subscribers only through Publish; Book itself publishes nothing,
// and addrbookd does not call Publish.
type Event struct {
	Kind string `json:"kind"` // "good", "attempt", "collision"
	Addr string `json:"addr"`
	Time int64  `json:"time"`
}

type apiResponseStatus struct {
	CountNew   int `json:"countnew"`
	CountTried int `json:"counttried"`
}

// apiStatus reports current table occupancy.
// Request:  GET /status
// Response: 200 with JSON apiResponseStatus
func (api *Instance) apiStatus(w http.ResponseWriter, r *http.Request) {
	newCount, triedCount := api.Book.Size()
	encodeJSON(w, apiResponseStatus{CountNew: newCount, CountTried: triedCount})
}

type apiResponseAddrInfo struct {
	Found       bool   `json:"found"`
	InTried     bool   `json:"intried,omitempty"`
	Time        int64  `json:"time,omitempty"`
	Services    uint64 `json:"services,omitempty"`
	LastTry     int64  `json:"lasttry,omitempty"`
	LastSuccess int64  `json:"lastsuccess,omitempty"`
	Attempts    int    `json:"attempts,omitempty"`
	AliasCount  int    `json:"aliascount,omitempty"`
}

// apiAddrFind looks up a single address.
// Request:  GET /addr/find?network=1&ip=<hex>&port=8080
// Response: 200 with JSON apiResponseAddrInfo
func (api *Instance) apiAddrFind(w http.ResponseWriter, r *http.Request) {
	addr, err := parseAddr(r)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	info, err := api.Book.FindAddressEntry(addr)
	if err != nil {
		encodeJSON(w, apiResponseAddrInfo{Found: false})
		return
	}
	encodeJSON(w, apiResponseAddrInfo{
		Found:       true,
		InTried:     info.InTried,
		Time:        info.Time,
		Services:    uint64(info.Services),
		LastTry:     info.LastTry,
		LastSuccess: info.LastSuccess,
		Attempts:    info.Attempts,
		AliasCount:  info.AliasCount,
	})
}

type apiResponseAddrSample struct {
	Addresses []string `json:"addresses"`
}

// apiAddrSample returns a random sample of addresses.
// Request:  GET /addr/sample?max=100&pct=23&network=1
// Response: 200 with JSON apiResponseAddrSample
func (api *Instance) apiAddrSample(w http.ResponseWriter, r *http.Request) {
	max := 0
	if v := r.URL.Query().Get("max"); v != "" {
		max, _ = strconv.Atoi(v)
	}
	pct := 0
	if v := r.URL.Query().Get("pct"); v != "" {
		pct, _ = strconv.Atoi(v)
	}
	var network *addrbook.Network
	if v := r.URL.Query().Get("network"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			http.Error(w, "invalid network", http.StatusBadRequest)
			return
		}
		nn := addrbook.Network(n)
		network = &nn
	}

	addrs := api.Book.GetAddr(max, pct, network)
	out := make([]string, len(addrs))
	for i, a := range addrs {
		out[i] = a.String()
	}
	encodeJSON(w, apiResponseAddrSample{Addresses: out})
}

// apiStatusStream pushes each Event given to Publish to a websocket client.
// Request:  GET /status/stream (upgrades to websocket)
func (api *Instance) apiStatusStream(w http.ResponseWriter, r *http.Request) {
	conn, err := WSUpgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	defer conn.Close()

	ch := make(chan Event, 16)
	id := registerSubscriber(api, ch)
	defer unregisterSubscriber(api, id)

	for ev := range ch {
		if err := conn.WriteJSON(ev); err != nil {
			return
		}
	}
}

func parseAddr(r *http.Request) (addrbook.Address, error) {
	q := r.URL.Query()
	netVal, err := strconv.Atoi(q.Get("network"))
	if err != nil {
		return addrbook.Address{}, errBadQuery("network")
	}
	ip, err := hex.DecodeString(q.Get("ip"))
	if err != nil {
		return addrbook.Address{}, errBadQuery("ip")
	}
	port, err := strconv.Atoi(q.Get("port"))
	if err != nil {
		return addrbook.Address{}, errBadQuery("port")
	}
	return addrbook.Address{
		NetAddr: addrbook.NetAddr{Net: addrbook.Network(netVal), IP: ip},
		Port:    uint16(port),
	}, nil
}

type badQueryError string

func (e badQueryError) Error() string { return "invalid or missing query parameter: " + string(e) }

func errBadQuery(param string) error { return badQueryError(param) }
