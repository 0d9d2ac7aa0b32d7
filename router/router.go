// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

// Package router routes inbound broker messages to the handler that owns their topic.
package router

import (
	"context"
	"fmt"
	"regexp"

	"github.com/TheThingsNetwork/iotgrid-bridge/middleware"
	"github.com/TheThingsNetwork/iotgrid-bridge/status"
	"github.com/TheThingsNetwork/iotgrid-bridge/topics"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// Params are the named captures of a route pattern, other than the tenant
type Params map[string]string

// Get returns the param or an empty string
func (p Params) Get(name string) string {
	return p[name]
}

// Handler turns a routed message into a domain call. It returns false if the
// message was not handled; it never asks for redelivery.
type Handler interface {
	Handle(ctx context.Context, scope *types.TenantScope, msg *types.InboundMessage, params Params) bool
}

// HandlerFunc is an adapter that allows ordinary functions as handlers
type HandlerFunc func(ctx context.Context, scope *types.TenantScope, msg *types.InboundMessage, params Params) bool

// Handle calls f
func (f HandlerFunc) Handle(ctx context.Context, scope *types.TenantScope, msg *types.InboundMessage, params Params) bool {
	return f(ctx, scope, msg, params)
}

type route struct {
	name        string
	pattern     *regexp.Regexp
	tenantIndex int
	handler     Handler
}

// Router holds an ordered list of routes. Routes are added at startup; the
// Router is safe for concurrent use once routing has started.
type Router struct {
	ctx        log.Interface
	routes     []route
	middleware middleware.Chain
}

// New returns a new Router
func New(ctx log.Interface, chain ...middleware.Inbound) *Router {
	return &Router{
		ctx:        ctx.WithField("Component", "Router"),
		middleware: chain,
	}
}

// Add a route. The pattern must have a named capture group "tenant".
func (r *Router) Add(name string, pattern *regexp.Regexp, handler Handler) {
	tenantIndex := pattern.SubexpIndex(topics.TenantParam)
	if tenantIndex < 0 {
		panic(fmt.Sprintf("router: pattern of route %s has no %s group", name, topics.TenantParam))
	}
	r.routes = append(r.routes, route{
		name:        name,
		pattern:     pattern,
		tenantIndex: tenantIndex,
		handler:     handler,
	})
}

// Route the message to the first route that matches its topic
func (r *Router) Route(ctx context.Context, msg *types.InboundMessage) bool {
	for _, route := range r.routes {
		match := route.pattern.FindStringSubmatch(msg.Topic)
		if match == nil {
			continue
		}
		status.Message()
		return r.dispatch(ctx, route, match, msg)
	}
	r.ctx.WithField("Topic", msg.Topic).Debug("No route for topic")
	registerRouted("none", resultUnrouted)
	return false
}

func (r *Router) dispatch(ctx context.Context, route route, match []string, msg *types.InboundMessage) bool {
	logCtx := r.ctx.WithFields(log.Fields{
		"Route": route.name,
		"Topic": msg.Topic,
	})

	tenantID, err := uuid.Parse(match[route.tenantIndex])
	if err != nil {
		logCtx.WithError(err).Warn("Invalid tenant in topic")
		registerRouted(route.name, resultInvalid)
		return false
	}
	params := make(Params)
	for i, name := range route.pattern.SubexpNames() {
		if i == 0 || name == "" || i == route.tenantIndex {
			continue
		}
		if match[i] == "" {
			logCtx.WithField("Param", name).Warn("Empty parameter in topic")
			registerRouted(route.name, resultInvalid)
			return false
		}
		params[name] = match[i]
	}

	scope := types.NewTenantScope(tenantID, msg.Topic)
	defer scope.End()

	if err := r.middleware.Execute(scope, msg); err != nil {
		logCtx.WithError(err).Debug("Message filtered by middleware")
		registerRouted(route.name, resultFiltered)
		return false
	}

	if !route.handler.Handle(ctx, scope, msg, params) {
		registerRouted(route.name, resultRejected)
		return false
	}
	registerRouted(route.name, resultHandled)
	return true
}
