package server

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/slack-go/slack"
	"go.uber.org/zap"

	"github.com/prite36/cropsense/internal/discovery"
	"github.com/prite36/cropsense/internal/history"
	"github.com/prite36/cropsense/internal/irrigation"
	"github.com/prite36/cropsense/internal/logging"
	"github.com/prite36/cropsense/internal/models"
	"github.com/prite36/cropsense/internal/registry"
	"github.com/prite36/cropsense/internal/telemetry"
)

// DeviceTokenHeader carries the device-cloud auth token of a request.
const DeviceTokenHeader = "X-Device-Token"

type handlers struct {
	Deps
}

// deviceToken prefers the request header over the token configured for the site.
func (h *handlers) deviceToken(r *http.Request, siteID string) (string, bool) {
	if token := strings.TrimSpace(r.Header.Get(DeviceTokenHeader)); token != "" {
		return token, true
	}
	return h.Config.SiteToken(siteID)
}

type addPinRequest struct {
	Pin      string   `json:"pin"`
	Label    string   `json:"label"`
	Type     string   `json:"type"`
	DataType string   `json:"dataType"`
	Min      *float64 `json:"min"`
	Max      *float64 `json:"max"`
	Color    string   `json:"color"`
}

func (h *handlers) listPins(w http.ResponseWriter, r *http.Request) {
	pins, err := h.Pins.ListBySite(r.Context(), chi.URLParam(r, "siteID"))
	if err != nil {
		h.Logger.Error("failed to list pins", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list pins")
		return
	}
	respondJSON(w, http.StatusOK, pins)
}

func (h *handlers) addPin(w http.ResponseWriter, r *http.Request) {
	var req addPinRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Error parsing request body")
		return
	}

	pin := models.NewPinConfig(chi.URLParam(r, "siteID"), req.Pin, req.Label)
	pin.Role = models.ParsePinRole(req.Type)
	pin.ValueKind = models.ParseValueKind(req.DataType)
	if req.Min != nil {
		pin.Min = *req.Min
	}
	if req.Max != nil {
		pin.Max = *req.Max
	}
	if req.Color != "" {
		pin.Color = req.Color
	}

	err := h.Pins.Add(r.Context(), &pin)
	switch {
	case errors.Is(err, registry.ErrDuplicate):
		respondError(w, http.StatusConflict, fmt.Sprintf("Pin %s is already registered", pin.Pin))
	case errors.Is(err, registry.ErrInvalidPin):
		respondError(w, http.StatusBadRequest, err.Error())
	case err != nil:
		h.Logger.Error("failed to add pin", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to add pin")
	default:
		respondJSON(w, http.StatusCreated, pin)
	}
}

func (h *handlers) removePin(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid pin id")
		return
	}

	err = h.Pins.Remove(r.Context(), id)
	switch {
	case errors.Is(err, registry.ErrNotFound):
		respondError(w, http.StatusNotFound, "Pin not found")
	case err != nil:
		h.Logger.Error("failed to remove pin", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to remove pin")
	default:
		w.WriteHeader(http.StatusNoContent)
	}
}

type liveResponse struct {
	*telemetry.Snapshot
	Alerts      []telemetry.Alert `json:"alerts"`
	AvgMoisture int               `json:"avgMoisture"`
}

func (h *handlers) live(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	token, ok := h.deviceToken(r, siteID)
	if !ok {
		respondError(w, http.StatusBadRequest, "No Auth Token")
		return
	}

	snapshot, err := h.Live.PollSite(r.Context(), siteID, token)
	if err != nil {
		logging.WithSite(h.Logger, siteID).Error("failed to poll site", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to read site telemetry")
		return
	}

	respondJSON(w, http.StatusOK, liveResponse{
		Snapshot:    snapshot,
		Alerts:      telemetry.Alerts(snapshot),
		AvgMoisture: telemetry.AverageMoisture(snapshot),
	})
}

type discoverRequest struct {
	Addresses []string `json:"addresses"`
}

type discoverResponse struct {
	Found int                `json:"found"`
	Pins  []models.PinConfig `json:"pins"`
}

func (h *handlers) discover(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	token, ok := h.deviceToken(r, siteID)
	if !ok {
		respondError(w, http.StatusBadRequest, "No Auth Token")
		return
	}

	var req discoverRequest
	if r.ContentLength != 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil && err != io.EOF {
			respondError(w, http.StatusBadRequest, "Error parsing request body")
			return
		}
	}
	addresses := req.Addresses
	if len(addresses) == 0 {
		addresses = discovery.DefaultAddressSpace(h.Config.Discovery.PinCount)
	}

	created, err := h.Scanner.Scan(r.Context(), siteID, token, addresses)
	if err != nil {
		logging.WithSite(h.Logger, siteID).Error("pin scan failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Pin scan failed")
		return
	}
	respondJSON(w, http.StatusOK, discoverResponse{Found: len(created), Pins: created})
}

type controlRequest struct {
	SiteID string      `json:"siteId"`
	Pin    string      `json:"pin"`
	Value  interface{} `json:"value"`
}

func (h *handlers) control(w http.ResponseWriter, r *http.Request) {
	var req controlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "Error parsing request body")
		return
	}
	if strings.TrimSpace(req.Pin) == "" || req.Value == nil {
		respondError(w, http.StatusBadRequest, "pin and value are required")
		return
	}
	token, ok := h.deviceToken(r, req.SiteID)
	if !ok {
		respondError(w, http.StatusBadRequest, "No Auth Token")
		return
	}

	value := fmt.Sprint(req.Value)
	if b, isBool := req.Value.(bool); isBool {
		value = "0"
		if b {
			value = "1"
		}
	}

	pin := models.NormalizePin(req.Pin)
	if err := h.Device.WritePin(r.Context(), token, pin, value); err != nil {
		h.Logger.Warn("device write failed", zap.String("pin", pin), zap.Error(err))
		respondError(w, http.StatusBadGateway, "Failed to write to device")
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{"success": true, "pin": pin, "value": value})
}

func (h *handlers) history(w http.ResponseWriter, r *http.Request) {
	siteID := chi.URLParam(r, "siteID")
	hours := 24
	if raw := r.URL.Query().Get("hours"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			respondError(w, http.StatusBadRequest, "hours must be a positive integer")
			return
		}
		hours = n
	}

	logs, err := h.History.Since(r.Context(), siteID, time.Now().Add(-time.Duration(hours)*time.Hour))
	if err != nil {
		logging.WithSite(h.Logger, siteID).Error("failed to load history", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to load history")
		return
	}
	respondJSON(w, http.StatusOK, history.GraphPoints(logs))
}

func (h *handlers) listSchedules(w http.ResponseWriter, r *http.Request) {
	schedules, err := h.Schedules.List(r.Context(), r.URL.Query().Get("siteId"))
	if err != nil {
		h.Logger.Error("failed to list schedules", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Failed to list schedules")
		return
	}
	respondJSON(w, http.StatusOK, schedules)
}

func (h *handlers) createSchedule(w http.ResponseWriter, r *http.Request) {
	var sched models.IrrigationSchedule
	if err := json.NewDecoder(r.Body).Decode(&sched); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Error parsing request body: %v", err))
		return
	}
	sched.ID = uuid.Nil

	if err := h.Schedules.Create(r.Context(), &sched); err != nil {
		h.scheduleError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, sched)
}

func (h *handlers) upcomingSchedule(w http.ResponseWriter, r *http.Request) {
	sched, ok, err := h.Schedules.Upcoming(r.Context(), r.URL.Query().Get("siteId"))
	if err != nil {
		h.scheduleError(w, err)
		return
	}
	if !ok {
		w.WriteHeader(http.StatusNoContent)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

func (h *handlers) updateSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}
	var patch irrigation.SchedulePatch
	if err := json.NewDecoder(r.Body).Decode(&patch); err != nil {
		respondError(w, http.StatusBadRequest, fmt.Sprintf("Error parsing request body: %v", err))
		return
	}

	sched, err := h.Schedules.Update(r.Context(), id, patch)
	if err != nil {
		h.scheduleError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, sched)
}

func (h *handlers) deleteSchedule(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid schedule id")
		return
	}
	if err := h.Schedules.Delete(r.Context(), id); err != nil {
		h.scheduleError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *handlers) scheduleError(w http.ResponseWriter, err error) {
	var verr *irrigation.ValidationError
	switch {
	case errors.As(err, &verr):
		respondError(w, http.StatusBadRequest, verr.Error())
	case errors.Is(err, irrigation.ErrNotFound):
		respondError(w, http.StatusNotFound, "Schedule not found")
	default:
		h.Logger.Error("schedule operation failed", zap.Error(err))
		respondError(w, http.StatusInternalServerError, "Schedule operation failed")
	}
}

// slackCommand answers a signed slash command with the next upcoming irrigation.
// The command text may name a site; an empty text covers all sites.
func (h *handlers) slackCommand(w http.ResponseWriter, r *http.Request) {
	verifier, err := slack.NewSecretsVerifier(r.Header, h.Config.Slack.SigningSecret)
	if err != nil {
		h.Logger.Warn("failed to create secrets verifier", zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		h.Logger.Error("failed to read request body", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	r.Body = io.NopCloser(bytes.NewBuffer(body))

	if _, err := verifier.Write(body); err != nil {
		h.Logger.Error("failed to write body to verifier", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	if err := verifier.Ensure(); err != nil {
		h.Logger.Warn("invalid slack signature", zap.Error(err))
		w.WriteHeader(http.StatusUnauthorized)
		return
	}

	cmd, err := slack.SlashCommandParse(r)
	if err != nil {
		h.Logger.Error("failed to parse slash command", zap.Error(err))
		w.WriteHeader(http.StatusBadRequest)
		return
	}

	siteID := strings.TrimSpace(cmd.Text)
	sched, ok, err := h.Schedules.Upcoming(r.Context(), siteID)
	if err != nil {
		h.Logger.Error("failed to load upcoming schedule", zap.Error(err))
		w.WriteHeader(http.StatusInternalServerError)
		return
	}

	respondJSON(w, http.StatusOK, &slack.Msg{
		ResponseType: "ephemeral",
		Text:         h.upcomingText(sched, ok),
	})
}

func (h *handlers) upcomingText(sched *models.IrrigationSchedule, ok bool) string {
	if !ok {
		return "No upcoming irrigation is scheduled."
	}
	next := *sched.NextRunAt
	if loc, err := h.Config.Location(); err == nil {
		next = next.In(loc)
	}
	text := fmt.Sprintf("Next irrigation: *%s* on %s for %d min", sched.Name, next.Format("Mon 02 Jan 15:04"), sched.DurationMinutes)
	if sched.Zone != "" {
		text += fmt.Sprintf(" (zone %s)", sched.Zone)
	}
	return text
}
