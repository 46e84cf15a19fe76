// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/gorilla/mux"

	"github.com/flux-framework/flux-core-sub008/api"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
)

// Handler answers one request-type message on a topic, filling in a
// response payload or an error string.
type Handler func(r *http.Request, msg api.Message) (payload any, err error)

// Broker routes topic-addressed RPCs the way the real broker's matching
// rules would, standing in for it over a plain HTTP+mux transport:
// "job-ingest.submit" and "job-manager.submit" become POST routes, and
// "job-info.event-watch" is upgraded to a websocket by EventStreamServer
// (eventstream.go) rather than handled here.
type Broker struct {
	router  *mux.Router
	logger  logging.Logger
	matches Matchtags
}

// NewBroker constructs a Broker with an empty route table.
func NewBroker(logger logging.Logger) *Broker {
	return &Broker{
		router: mux.NewRouter().StrictSlash(false),
		logger: logging.Or(logger),
	}
}

// Router exposes the underlying mux.Router so callers can mount it, or
// add the websocket upgrade route next to the RPC routes.
func (b *Broker) Router() *mux.Router { return b.router }

// HandleTopic registers h to serve topic over POST /rpc/<topic>.
func (b *Broker) HandleTopic(topic string, h Handler) {
	b.router.HandleFunc("/rpc/"+topic, b.wrap(topic, h)).Methods(http.MethodPost)
}

func (b *Broker) wrap(topic string, h Handler) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var msg api.Message
		if err := json.NewDecoder(r.Body).Decode(&msg); err != nil {
			writeError(w, topic, ferrors.Newf(ferrors.CodeProtocolError, "decode message: %v", err))
			return
		}
		msg.Topic = topic
		msg.Route = append(msg.Route, RouteHop())
		if (msg.Cred == api.Cred{}) {
			msg.Cred = credFromHeader(r)
		}
		if msg.Matchtag == 0 {
			msg.Matchtag = b.matches.Alloc()
		}

		payload, err := h(r, msg)
		if err != nil {
			writeError(w, topic, err)
			return
		}

		raw, err := json.Marshal(payload)
		if err != nil {
			writeError(w, topic, err)
			return
		}
		resp := api.Message{
			Type:     api.MessageResponse,
			Topic:    topic,
			Matchtag: msg.Matchtag,
			Cred:     msg.Cred,
			Payload:  raw,
			Route:    msg.Route,
		}
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(resp)
	}
}

func writeError(w http.ResponseWriter, topic string, err error) {
	status := http.StatusInternalServerError
	if fe, ok := err.(*ferrors.FluxError); ok {
		status = statusForCode(fe.Code)
	}
	resp := api.Message{Type: api.MessageResponse, Topic: topic, Payload: errorPayload(err)}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(resp)
}

func errorPayload(err error) json.RawMessage {
	raw, _ := json.Marshal(map[string]string{"error": err.Error()})
	return raw
}

func statusForCode(code ferrors.Code) int {
	switch code {
	case ferrors.CodeInvalidArgument, ferrors.CodeProtocolError:
		return http.StatusBadRequest
	case ferrors.CodePermissionDenied:
		return http.StatusForbidden
	case ferrors.CodeNoSuchEntry:
		return http.StatusNotFound
	case ferrors.CodeUnsupported:
		return http.StatusNotImplemented
	default:
		return http.StatusInternalServerError
	}
}

// credFromHeader reconstructs an api.Cred from the X-Flux-Userid and
// X-Flux-Rolemask headers a front-end connector would set after
// authenticating the peer; both default to the unprivileged guest cred.
func credFromHeader(r *http.Request) api.Cred {
	var cred api.Cred
	if v := r.Header.Get("X-Flux-Userid"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cred.Userid = uint32(n)
		}
	}
	if v := r.Header.Get("X-Flux-Rolemask"); v != "" {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cred.RoleMask = api.RoleMask(n)
		}
	}
	return cred
}
