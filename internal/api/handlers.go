package api

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/sentrygrid/twinctl/internal/calculate"
	"github.com/sentrygrid/twinctl/internal/model"
	"github.com/sentrygrid/twinctl/internal/override"
	"github.com/sentrygrid/twinctl/internal/systemreg"
	"github.com/sentrygrid/twinctl/internal/twin"
	"github.com/sentrygrid/twinctl/internal/twinerr"
)

// Handlers bundles the core components the REST port calls straight into.
type Handlers struct {
	Store      twin.Store
	Overrides  override.Store
	Systems    systemreg.Registry
	Calculator *calculate.Calculator
}

// intentRequest is the PUT /devices/{controller}/{component}/intent body.
type intentRequest struct {
	Type        model.DeviceType `json:"type"`
	Relay       *bool            `json:"relay,omitempty"`
	FanSpeed    *int             `json:"fanSpeed,omitempty"`
	RequestedBy string           `json:"requestedBy"`
}

func (r intentRequest) toValue() (model.DeviceValue, error) {
	switch r.Type {
	case model.DeviceTypeRelay:
		if r.Relay == nil {
			return model.DeviceValue{}, twinerr.New("api.PutIntent", twinerr.KindValidation, "", twinerr.ErrValidation)
		}
		return model.NewRelayValue(*r.Relay), nil
	case model.DeviceTypeFan:
		if r.FanSpeed == nil {
			return model.DeviceValue{}, twinerr.New("api.PutIntent", twinerr.KindValidation, "", twinerr.ErrValidation)
		}
		v, err := model.NewFanValue(*r.FanSpeed)
		if err != nil {
			return model.DeviceValue{}, twinerr.New("api.PutIntent", twinerr.KindValidation, "", err)
		}
		return v, nil
	default:
		return model.DeviceValue{}, twinerr.New("api.PutIntent", twinerr.KindValidation, "", twinerr.ErrValidation)
	}
}

// PutIntent handles PUT /devices/{controller}/{component}/intent.
func (h *Handlers) PutIntent(w http.ResponseWriter, r *http.Request, deviceId model.DeviceId) {
	var req intentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	value, err := req.toValue()
	if err != nil {
		writeErr(w, err)
		return
	}

	intent := model.UserIntent{
		Id:          deviceId,
		Type:        req.Type,
		Value:       value,
		RequestedAt: time.Now(),
		RequestedBy: req.RequestedBy,
	}
	if err := h.Store.SaveUserIntent(r.Context(), intent); err != nil {
		writeErr(w, err)
		return
	}
	if err := h.Calculator.Recalculate(r.Context(), deviceId, req.Type); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusAccepted, intent)
}

// GetTwin handles GET /devices/{controller}/{component}.
func (h *Handlers) GetTwin(w http.ResponseWriter, r *http.Request, deviceId model.DeviceId) {
	snap, err := h.Store.FindTwinSnapshot(r.Context(), deviceId)
	if err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snap)
}

// DeleteDevice handles DELETE /devices/{controller}/{component}.
func (h *Handlers) DeleteDevice(w http.ResponseWriter, r *http.Request, deviceId model.DeviceId) {
	if err := h.Store.DeleteDevice(r.Context(), deviceId); err != nil {
		writeErr(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// overrideRequest is the PUT /overrides/{targetId}/{category} body.
type overrideRequest struct {
	Scope     model.OverrideScope `json:"scope"`
	Type      model.DeviceType    `json:"type"`
	Relay     *bool               `json:"relay,omitempty"`
	FanSpeed  *int                `json:"fanSpeed,omitempty"`
	Reason    string              `json:"reason"`
	ExpiresAt *time.Time          `json:"expiresAt,omitempty"`
	CreatedBy string              `json:"createdBy"`
	Version   int64               `json:"version"`
}

// PutOverride handles PUT /overrides/{targetId}/{category}.
func (h *Handlers) PutOverride(w http.ResponseWriter, r *http.Request, targetId string, category model.OverrideCategory) {
	var req overrideRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	value, err := (intentRequest{Type: req.Type, Relay: req.Relay, FanSpeed: req.FanSpeed}).toValue()
	if err != nil {
		writeErr(w, err)
		return
	}

	ov := model.Override{
		TargetId:  targetId,
		Scope:     req.Scope,
		Category:  category,
		Value:     value,
		Reason:    req.Reason,
		ExpiresAt: req.ExpiresAt,
		CreatedAt: time.Now(),
		CreatedBy: req.CreatedBy,
		Version:   req.Version,
	}
	// A client that omits version (0) wants "set regardless of current
	// state" and gets one attempt; a client that read a version first is
	// racing another writer and gets the bounded retry-with-backoff.
	if req.Version == 0 {
		if err := h.Overrides.Put(r.Context(), ov); err != nil {
			writeErr(w, err)
			return
		}
	} else {
		err := override.PutWithRetry(r.Context(), h.Overrides, targetId, category, func(version int64) model.Override {
			ov.Version = version
			return ov
		})
		if err != nil {
			writeErr(w, err)
			return
		}
	}

	h.recalculateTarget(r, targetId, req.Scope)
	writeJSON(w, http.StatusOK, ov)
}

// DeleteOverride handles DELETE /overrides/{targetId}/{category}.
func (h *Handlers) DeleteOverride(w http.ResponseWriter, r *http.Request, targetId string, category model.OverrideCategory, scope model.OverrideScope) {
	if err := h.Overrides.Delete(r.Context(), targetId, category); err != nil {
		writeErr(w, err)
		return
	}
	h.recalculateTarget(r, targetId, scope)
	w.WriteHeader(http.StatusNoContent)
}

// recalculateTarget re-runs SC for every device a PUT/DELETE override
// could have changed the effective value of: the device itself for
// DEVICE scope, or every member device for SYSTEM scope.
func (h *Handlers) recalculateTarget(r *http.Request, targetId string, scope model.OverrideScope) {
	if scope == model.ScopeDevice {
		id, err := model.ParseDeviceId(targetId)
		if err != nil {
			return
		}
		snap, err := h.Store.FindTwinSnapshot(r.Context(), id)
		if err != nil || snap.Desired == nil {
			return
		}
		_ = h.Calculator.Recalculate(r.Context(), id, snap.Desired.Type)
		return
	}

	sys, err := h.Systems.Get(r.Context(), targetId)
	if err != nil || sys == nil {
		return
	}
	for _, d := range sys.DeviceIds {
		id, err := model.ParseDeviceId(d)
		if err != nil {
			continue
		}
		snap, err := h.Store.FindTwinSnapshot(r.Context(), id)
		if err != nil || snap.Desired == nil {
			continue
		}
		_ = h.Calculator.Recalculate(r.Context(), id, snap.Desired.Type)
	}
}

// systemRequest is the POST /systems body.
type systemRequest struct {
	Id        string   `json:"id"`
	Type      string   `json:"type"`
	Name      string   `json:"name"`
	DeviceIds []string `json:"deviceIds"`
	Version   int64    `json:"version"`
}

// PostSystem handles POST /systems.
func (h *Handlers) PostSystem(w http.ResponseWriter, r *http.Request) {
	var req systemRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeProblem(w, http.StatusBadRequest, "malformed request body", err.Error())
		return
	}
	sys := model.FunctionalSystem{
		Id:        req.Id,
		Type:      req.Type,
		Name:      req.Name,
		DeviceIds: req.DeviceIds,
		Version:   req.Version,
	}
	if err := h.Systems.Put(r.Context(), sys); err != nil {
		writeErr(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sys)
}

// GetSystem handles GET /systems/{id}.
func (h *Handlers) GetSystem(w http.ResponseWriter, r *http.Request, id string) {
	sys, err := h.Systems.Get(r.Context(), id)
	if err != nil {
		writeErr(w, err)
		return
	}
	if sys == nil {
		writeProblem(w, http.StatusNotFound, "not found", "system "+id+" not found")
		return
	}
	writeJSON(w, http.StatusOK, sys)
}
