// Copyright © 2017 The Things Network
// Use of this source code is governed by the MIT license that can be found in the LICENSE file.

package service

import (
	"context"
	"fmt"

	"github.com/TheThingsNetwork/iotgrid-bridge/store"
	"github.com/TheThingsNetwork/iotgrid-bridge/types"
	"github.com/apex/log"
	"github.com/google/uuid"
)

// AlertService raises and clears alerts
type AlertService struct {
	ctx    log.Interface
	store  store.Store
	notify Notifier
}

// NewAlertService returns a new AlertService
func NewAlertService(s store.Store, notify Notifier, ctx log.Interface) *AlertService {
	return &AlertService{
		ctx:    ctx.WithField("Component", "AlertService"),
		store:  s,
		notify: notify,
	}
}

func (a *AlertService) active(ctx context.Context, tenantID uuid.UUID, hubID, code string) ([]*types.Alert, error) {
	alerts, err := a.store.Alerts(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	var active []*types.Alert
	for _, alert := range alerts {
		if alert.IsActive && alert.HubID == hubID && alert.AlertTypeCode == code {
			active = append(active, alert)
		}
	}
	return active, nil
}

// CreateHubOfflineAlert raises a critical alert for the hub, unless one is already active.
// It returns nil if no alert was raised.
func (a *AlertService) CreateHubOfflineAlert(ctx context.Context, scope *types.TenantScope, hub *types.Hub) (*types.Alert, error) {
	active, err := a.active(ctx, scope.TenantID, hub.HubID, types.AlertCodeHubOffline)
	if err != nil {
		return nil, fmt.Errorf("could not get alerts: %w", err)
	}
	if len(active) > 0 {
		return nil, nil
	}
	alert := &types.Alert{
		ID:             uuid.New(),
		TenantID:       scope.TenantID,
		HubID:          hub.HubID,
		AlertTypeCode:  types.AlertCodeHubOffline,
		Level:          types.AlertLevelCritical,
		Message:        fmt.Sprintf("Hub '%s' is offline.", hub.Name),
		Recommendation: "Please check the power supply and network connection of the hub.",
		CreatedAt:      now(),
		IsActive:       true,
	}
	if err := a.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("could not save alert: %w", err)
	}
	a.ctx.WithFields(log.Fields{
		"TenantID": scope.TenantID,
		"HubID":    hub.HubID,
		"AlertID":  alert.ID,
	}).Warn("Hub offline alert raised")
	a.notify.NotifyAlertRaised(scope.TenantID, alert)
	return alert, nil
}

// DeactivateHubAlerts deactivates the active alerts with the code for the hub.
// It returns the number of deactivated alerts.
func (a *AlertService) DeactivateHubAlerts(ctx context.Context, scope *types.TenantScope, hubID, code string) (int, error) {
	active, err := a.active(ctx, scope.TenantID, hubID, code)
	if err != nil {
		return 0, fmt.Errorf("could not get alerts: %w", err)
	}
	for _, alert := range active {
		alert.IsActive = false
		if err := a.store.SaveAlert(ctx, alert); err != nil {
			return 0, fmt.Errorf("could not save alert %s: %w", alert.ID, err)
		}
	}
	if len(active) > 0 {
		a.ctx.WithFields(log.Fields{
			"TenantID": scope.TenantID,
			"HubID":    hubID,
			"Code":     code,
			"Count":    len(active),
		}).Info("Deactivated alerts")
	}
	return len(active), nil
}

// Acknowledge an alert. Acknowledging twice keeps the first acknowledgement time.
func (a *AlertService) Acknowledge(ctx context.Context, scope *types.TenantScope, alertID uuid.UUID) (*types.Alert, error) {
	alert, err := a.store.GetAlert(ctx, scope.TenantID, alertID)
	if err != nil {
		return nil, err
	}
	if alert.AcknowledgedAt != nil {
		return alert, nil
	}
	acknowledged := now()
	alert.AcknowledgedAt = &acknowledged
	alert.IsActive = false
	if err := a.store.SaveAlert(ctx, alert); err != nil {
		return nil, fmt.Errorf("could not save alert %s: %w", alert.ID, err)
	}
	a.notify.NotifyAlertAcknowledged(scope.TenantID, alert)
	return alert, nil
}
