// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package realtime

import (
	"errors"
	"net/http"
	"net/url"

	"github.com/apex/log"
	"github.com/google/uuid"
	socketio "github.com/googollee/go-socket.io"
)

// Client events
const (
	joinDeviceGroupEvt  = "joinDeviceGroup"
	leaveDeviceGroupEvt = "leaveDeviceGroup"
	joinAlertGroupEvt   = "joinAlertGroup"
	leaveAlertGroupEvt  = "leaveAlertGroup"
	joinDebugGroupEvt   = "joinDebugGroup"
	leaveDebugGroupEvt  = "leaveDebugGroup"
)

const namespace = "/"

// TenantHeader is the header that carries the tenant of a connection
const TenantHeader = "X-Tenant-Id"

// ErrNoTenant is returned when the tenant of a connection can not be resolved
var ErrNoTenant = errors.New("realtime: no tenant for connection")

// TenantResolver resolves the tenant of a connection when it opens
type TenantResolver func(u url.URL, header http.Header) (uuid.UUID, error)

// DefaultTenantResolver uses the tenantId query parameter, then the tenant
// header, then the default tenant if it is not the nil UUID.
func DefaultTenantResolver(defaultTenant uuid.UUID) TenantResolver {
	return func(u url.URL, header http.Header) (uuid.UUID, error) {
		if tenant := u.Query().Get("tenantId"); tenant != "" {
			return uuid.Parse(tenant)
		}
		if tenant := header.Get(TenantHeader); tenant != "" {
			return uuid.Parse(tenant)
		}
		if defaultTenant != uuid.Nil {
			return defaultTenant, nil
		}
		return uuid.Nil, ErrNoTenant
	}
}

// Server exposes the registry over socket.io
type Server struct {
	ctx      log.Interface
	registry *Registry
	resolve  TenantResolver
	server   *socketio.Server
}

// NewServer creates a new server
func NewServer(registry *Registry, resolve TenantResolver, ctx log.Interface) *Server {
	s := &Server{
		ctx:      ctx.WithField("Connector", "SocketIO"),
		registry: registry,
		resolve:  resolve,
		server:   socketio.NewServer(nil),
	}

	s.server.OnConnect(namespace, func(so socketio.Conn) error {
		return s.connect(so.ID(), so.URL(), so.RemoteHeader(), &socketSender{so})
	})
	s.server.OnDisconnect(namespace, func(so socketio.Conn, reason string) {
		s.ctx.WithField("ConnectionID", so.ID()).WithField("Reason", reason).Debug("Socket disconnected")
		s.registry.Unregister(so.ID())
	})
	s.server.OnError(namespace, func(so socketio.Conn, err error) {
		ctx := s.ctx.WithError(err)
		if so != nil {
			ctx = ctx.WithField("ConnectionID", so.ID())
		}
		ctx.Debug("Socket error")
	})

	s.onString(joinDeviceGroupEvt, (*Connection).JoinDeviceGroup)
	s.onString(leaveDeviceGroupEvt, (*Connection).LeaveDeviceGroup)
	s.onInt(joinAlertGroupEvt, (*Connection).JoinAlertGroup)
	s.onInt(leaveAlertGroupEvt, (*Connection).LeaveAlertGroup)
	s.onString(joinDebugGroupEvt, (*Connection).JoinDebugGroup)
	s.onString(leaveDebugGroupEvt, (*Connection).LeaveDebugGroup)

	return s
}

func (s *Server) connect(id string, u url.URL, header http.Header, sender Sender) error {
	ctx := s.ctx.WithField("ConnectionID", id)
	tenantID, err := s.resolve(u, header)
	if err != nil {
		ctx.WithError(err).Warn("Refusing connection without valid tenant")
		return err
	}
	s.registry.Register(id, tenantID, sender)
	ctx.WithField("TenantID", tenantID).Debug("Socket connected")
	return nil
}

func (s *Server) withConnection(id, event string, f func(*Connection)) {
	conn, ok := s.registry.Get(id)
	if !ok {
		s.ctx.WithField("ConnectionID", id).WithField("Event", event).Debug("Event from unknown connection")
		return
	}
	f(conn)
}

func (s *Server) onString(event string, f func(*Connection, string)) {
	s.server.OnEvent(namespace, event, func(so socketio.Conn, id string) {
		s.withConnection(so.ID(), event, func(conn *Connection) { f(conn, id) })
	})
}

func (s *Server) onInt(event string, f func(*Connection, int)) {
	s.server.OnEvent(namespace, event, func(so socketio.Conn, level int) {
		s.withConnection(so.ID(), event, func(conn *Connection) { f(conn, level) })
	})
}

// ServeHTTP serves the socket.io endpoint
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.server.ServeHTTP(w, r)
}

// Serve starts the socket.io server loop in the background
func (s *Server) Serve() {
	go func() {
		if err := s.server.Serve(); err != nil {
			s.ctx.WithError(err).Error("Could not serve socket.io")
		}
	}()
}

// Close the server
func (s *Server) Close() error {
	return s.server.Close()
}

type socketSender struct {
	conn socketio.Conn
}

func (s *socketSender) Emit(event string, payload interface{}) error {
	s.conn.Emit(event, payload)
	return nil
}
