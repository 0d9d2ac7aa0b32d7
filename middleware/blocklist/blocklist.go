// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package blocklist

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"gopkg.in/yaml.v2"
)

type blockedItem struct {
	Tenant string `yaml:"tenant"`
	Topic  string `yaml:"topic"`
}

// NewBlocklist returns a middleware that drops traffic of blocked tenants and
// topics. The files are watched and re-read when they change.
func NewBlocklist(ctx log.Interface, files ...string) (b *Blocklist, err error) {
	b = &Blocklist{
		ctx:          ctx.WithField("Middleware", "Blocklist"),
		lists:        make(map[string][]blockedItem),
		tenantLookup: make(map[uuid.UUID]bool),
		topicLookup:  make(map[string]bool),
	}
	b.watcher, err = fsnotify.NewWatcher()
	if err != nil {
		return nil, err
	}
	for _, file := range files {
		if err := b.addFile(file); err != nil {
			b.watcher.Close()
			return nil, err
		}
	}
	go func() {
		for e := range b.watcher.Events {
			if e.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := b.read(e.Name); err != nil {
				b.ctx.WithError(err).WithField("File", e.Name).Warn("Could not reload blocklist")
				continue
			}
			b.ctx.WithField("File", e.Name).Info("Reloaded blocklist")
		}
	}()
	return b, nil
}

// Blocklist middleware
type Blocklist struct {
	ctx     log.Interface
	watcher *fsnotify.Watcher

	mu           sync.RWMutex
	lists        map[string][]blockedItem
	tenantLookup map[uuid.UUID]bool
	topicLookup  map[string]bool
}

func (b *Blocklist) addFile(filename string) (err error) {
	filename, err = filepath.Abs(filename)
	if err != nil {
		return err
	}
	if err = b.watcher.Add(filename); err != nil {
		return err
	}
	return b.read(filename)
}

// Close the blocklist watcher
func (b *Blocklist) Close() {
	b.watcher.Close()
}

func (b *Blocklist) read(filename string) error {
	contents, err := os.ReadFile(filename)
	if err != nil {
		return err
	}
	var list []blockedItem
	if err = yaml.Unmarshal(contents, &list); err != nil {
		return err
	}
	b.mu.Lock()
	b.lists[filename] = list
	b.updateLookup()
	b.mu.Unlock()
	return nil
}

func (b *Blocklist) updateLookup() {
	b.tenantLookup = make(map[uuid.UUID]bool)
	b.topicLookup = make(map[string]bool)
	for filename, list := range b.lists {
		for _, item := range list {
			if item.Tenant != "" {
				tenantID, err := uuid.Parse(item.Tenant)
				if err != nil {
					b.ctx.WithField("File", filename).WithField("Tenant", item.Tenant).Warn("Ignoring invalid tenant")
					continue
				}
				b.tenantLookup[tenantID] = true
			}
			if item.Topic != "" {
				b.topicLookup[strings.TrimSuffix(item.Topic, "/")] = true
			}
		}
	}
}

// Blocklist errors
var (
	ErrBlockedTenant = errors.New("blocklist: tenant is blocked")
	ErrBlockedTopic  = errors.New("blocklist: topic is blocked")
)

// HandleInbound drops messages of blocked tenants and topics
func (b *Blocklist) HandleInbound(scope *types.TenantScope, msg *types.InboundMessage) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.tenantLookup[scope.TenantID] {
		return ErrBlockedTenant
	}
	if b.topicLookup[msg.Topic] {
		return ErrBlockedTopic
	}
	return nil
}
