// SPDX-FileCopyrightText: 2025 Jon Thor Kristinsson
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"context"
	"net/http"
	"net/url"
	"time"

	"github.com/gorilla/websocket"

	"github.com/flux-framework/flux-core-sub008/internal/eventlog"
	"github.com/flux-framework/flux-core-sub008/pkg/ferrors"
	"github.com/flux-framework/flux-core-sub008/pkg/logging"
)

// watchRequest is the first (and only) client->server frame on an
// event-watch connection, spec.md §4.8's flux_job_event_watch(id, name, 0).
type watchRequest struct {
	ID   uint64 `json:"id"`
	Name string `json:"name"`
}

// EventStreamServer upgrades "job-info.event-watch" HTTP requests to a
// websocket and pumps one *eventlog.Store's entries down it one frame per
// eventlog line, replacing the teacher's job/node/partition stream
// multiplexer (pkg/streaming/websocket.go) with a single eventlog stream
// per connection.
type EventStreamServer struct {
	store    *eventlog.Store
	upgrader websocket.Upgrader
	logger   logging.Logger
}

func NewEventStreamServer(store *eventlog.Store, logger logging.Logger) *EventStreamServer {
	return &EventStreamServer{
		store:  store,
		logger: logging.Or(logger),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool { return true },
		},
	}
}

// ServeHTTP implements http.Handler so it can be mounted directly on a
// Broker's mux.Router at the job-info.event-watch route.
func (s *EventStreamServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("event-watch upgrade failed", "err", err)
		return
	}
	defer conn.Close()

	var req watchRequest
	if err := conn.ReadJSON(&req); err != nil {
		s.logger.Warn("event-watch bad request frame", "err", err)
		return
	}

	ctx, cancel := context.WithCancel(r.Context())
	defer cancel()

	go drainClientCancel(conn, cancel)

	lines, status, err := s.store.WatchRaw(ctx, req.ID, req.Name)
	if err != nil {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}

	for line := range lines {
		if err := conn.WriteMessage(websocket.TextMessage, []byte(line)); err != nil {
			return
		}
	}
	if err := status(); err != nil && !eventlog.IsNoData(err) {
		conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseInternalServerErr, err.Error()))
		return
	}
	conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// drainClientCancel watches for the client closing its half of the
// connection (the attach side cancels a tail by closing, spec.md §4.8)
// and cancels ctx so WatchRaw's goroutine unblocks.
func drainClientCancel(conn *websocket.Conn, cancel context.CancelFunc) {
	defer cancel()
	for {
		if _, _, err := conn.NextReader(); err != nil {
			return
		}
	}
}

// EventStreamClient implements eventlog.RawWatcher over a websocket
// connection to an EventStreamServer, for *internal/attach.Client* and
// *internal/eventlog.Tailer* running out-of-process from the broker.
type EventStreamClient struct {
	baseURL string
	logger  logging.Logger
}

func NewEventStreamClient(baseURL string, logger logging.Logger) *EventStreamClient {
	return &EventStreamClient{baseURL: baseURL, logger: logging.Or(logger)}
}

// WatchRaw implements eventlog.RawWatcher.
func (c *EventStreamClient) WatchRaw(ctx context.Context, jobID uint64, name string) (<-chan string, func() error, error) {
	u, err := url.Parse(c.baseURL)
	if err != nil {
		return nil, nil, ferrors.Newf(ferrors.CodeInvalidArgument, "bad event-watch URL: %v", err)
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	u.Path = "/rpc/job-info.event-watch"

	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, u.String(), nil)
	if err != nil {
		return nil, nil, ferrors.Newf(ferrors.CodeConnectionReset, "event-watch dial: %v", err)
	}

	if err := conn.WriteJSON(watchRequest{ID: jobID, Name: name}); err != nil {
		conn.Close()
		return nil, nil, ferrors.Newf(ferrors.CodeIOError, "event-watch request: %v", err)
	}

	out := make(chan string, 16)
	var streamErr error

	go func() {
		defer close(out)
		defer conn.Close()
		for {
			msgType, data, err := conn.ReadMessage()
			if err != nil {
				if websocket.IsCloseError(err, websocket.CloseNormalClosure) || ctx.Err() != nil {
					streamErr = ferrors.New(ferrors.CodeNoData, "event-watch closed")
				} else {
					streamErr = ferrors.Newf(ferrors.CodeConnectionReset, "event-watch read: %v", err)
				}
				return
			}
			if msgType != websocket.TextMessage {
				continue
			}
			select {
			case out <- string(data):
			case <-ctx.Done():
				streamErr = ferrors.New(ferrors.CodeNoData, "event-watch closed")
				return
			}
		}
	}()

	go func() {
		<-ctx.Done()
		conn.Close()
	}()

	status := func() error { return streamErr }
	return out, status, nil
}
