// Copyright 2026 The Brewshed Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/brewshed/brewshed/lib/clock"
	"github.com/brewshed/brewshed/lib/fanout"
	"github.com/brewshed/brewshed/lib/recipe"
	"github.com/brewshed/brewshed/lib/schema"
	"github.com/brewshed/brewshed/lib/session"
	"github.com/brewshed/brewshed/lib/store"
)

// maxRequestBytes bounds JSON request body reads. BeerXML uploads are
// the largest legitimate payload and stay well under this.
const maxRequestBytes int64 = 8 << 20

// server bundles the HTTP API's dependencies. Handlers decode the
// request, call into the manager or stores, and map domain errors to
// statuses; they hold no state of their own.
type server struct {
	store     *store.Store
	manager   *session.Manager
	recipes   *recipe.FileStore
	bus       *fanout.Bus
	clock     clock.Clock
	logger    *slog.Logger
	startedAt time.Time
}

// routes builds the API surface. Method patterns keep dispatch in the
// mux; handlers never switch on r.Method.
func (s *server) routes() *http.ServeMux {
	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)
	mux.HandleFunc("GET /status", s.handleStatus)

	mux.HandleFunc("PUT /device/{uid}", s.handleRegisterDevice)
	mux.HandleFunc("PATCH /device/{uid}", s.handleUpdateAlias)
	mux.HandleFunc("GET /devices", s.handleListDevices)

	mux.HandleFunc("PUT /device/{uid}/sessions/{sessionType}", s.handleSessionToggle)
	mux.HandleFunc("POST /device/{uid}/sessions/{sessionType}/telemetry", s.handleTelemetry)

	mux.HandleFunc("GET /sessions/{sessionType}/active", s.handleActiveSessions)
	mux.HandleFunc("GET /sessions/{sessionType}/history", s.handleSessionHistory)
	mux.HandleFunc("GET /sessions/{sessionType}/{guid}/points", s.handleSessionPoints)

	mux.HandleFunc("GET /recipes/{deviceType}", s.handleListRecipes)
	mux.HandleFunc("GET /recipes/{deviceType}/{id}", s.handleGetRecipe)
	mux.HandleFunc("POST /recipes/{deviceType}/template", s.handleRecipeFromTemplate)
	mux.HandleFunc("POST /recipes/{deviceType}/custom", s.handleRecipeFromParams)
	mux.HandleFunc("POST /recipes/{deviceType}/upload", s.handleRecipeUpload)

	return mux
}

// writeJSON writes v as the JSON response body with the given status.
func (s *server) writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		s.logger.Error("response encode failed", "error", err)
	}
}

// writeError maps a domain error to its HTTP status and renders the
// standard {"error": ...} body. Validation failures additionally
// carry the full violation list.
func (s *server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	status := http.StatusInternalServerError
	body := map[string]any{"error": err.Error()}

	var validationError *recipe.ValidationError
	var mismatchError *recipe.ProtocolMismatchError
	switch {
	case store.IsConflict(err) || recipe.IsConflict(err):
		status = http.StatusConflict
	case store.IsNotFound(err) || recipe.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &validationError):
		status = http.StatusBadRequest
		body["violations"] = validationError.Violations
	case errors.As(err, &mismatchError):
		status = http.StatusBadRequest
	}

	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed",
			"method", r.Method, "path", r.URL.Path, "error", err)
	}
	s.writeJSON(w, status, body)
}

// badRequest renders a 400 for malformed input that never reached the
// domain layer.
func (s *server) badRequest(w http.ResponseWriter, err error) {
	s.writeJSON(w, http.StatusBadRequest, map[string]any{"error": err.Error()})
}

// decodeBody decodes a bounded JSON request body into v.
func decodeBody(r *http.Request, v any) error {
	data, err := io.ReadAll(io.LimitReader(r.Body, maxRequestBytes))
	if err != nil {
		return fmt.Errorf("reading request body: %w", err)
	}
	if len(data) == 0 {
		return fmt.Errorf("request body is empty")
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("parsing request body: %w", err)
	}
	return nil
}

func (s *server) handleHealthz(w http.ResponseWriter, _ *http.Request) {
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// statusResponse is the GET /status payload: aggregate operational
// counters for dashboards and monitoring.
type statusResponse struct {
	Status        string        `json:"status"`
	UptimeSeconds float64       `json:"uptime_seconds"`
	Sessions      session.Stats `json:"sessions"`
	Subscribers   int           `json:"subscribers"`
	DroppedEvents uint64        `json:"dropped_events"`
	Store         store.Stats   `json:"store"`
}

func (s *server) handleStatus(w http.ResponseWriter, r *http.Request) {
	storeStats, err := s.store.Stats(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, statusResponse{
		Status:        "ok",
		UptimeSeconds: s.clock.Now().Sub(s.startedAt).Seconds(),
		Sessions:      s.manager.Stats(),
		Subscribers:   s.bus.SubscriberCount(),
		DroppedEvents: s.bus.Dropped(),
		Store:         storeStats,
	})
}

type registerDeviceRequest struct {
	DeviceType string `json:"device_type"`
	Alias      string `json:"alias"`
}

func (s *server) handleRegisterDevice(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	if err := schema.ValidateUID(uid); err != nil {
		s.badRequest(w, err)
		return
	}

	var request registerDeviceRequest
	if err := decodeBody(r, &request); err != nil {
		s.badRequest(w, err)
		return
	}
	deviceType, err := schema.ParseDeviceType(request.DeviceType)
	if err != nil {
		s.badRequest(w, err)
		return
	}

	device, err := s.store.UpsertDevice(r.Context(), uid, deviceType, request.Alias)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, device)
}

type updateAliasRequest struct {
	Alias string `json:"alias"`
}

func (s *server) handleUpdateAlias(w http.ResponseWriter, r *http.Request) {
	var request updateAliasRequest
	if err := decodeBody(r, &request); err != nil {
		s.badRequest(w, err)
		return
	}

	device, err := s.store.UpdateAlias(r.Context(), r.PathValue("uid"), request.Alias)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, device)
}

func (s *server) handleListDevices(w http.ResponseWriter, r *http.Request) {
	devices, err := s.store.ListDevices(r.Context())
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if devices == nil {
		devices = []*schema.Device{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"devices": devices})
}

// sessionToggleRequest drives both session transitions. The params
// apply only when active is true. AutoComplete and UseConservative
// are pointers so that an absent field defaults to true; the common
// case is a fermenter that should stop itself.
type sessionToggleRequest struct {
	Active            *bool    `json:"active"`
	TargetABV         *float64 `json:"target_abv"`
	TargetPressurePsi *float64 `json:"target_pressure_psi"`
	AutoComplete      *bool    `json:"auto_complete"`
	UseConservative   *bool    `json:"use_conservative"`
}

func (s *server) handleSessionToggle(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	sessionType, err := schema.ParseSessionType(r.PathValue("sessionType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var request sessionToggleRequest
	if err := decodeBody(r, &request); err != nil {
		s.badRequest(w, err)
		return
	}
	if request.Active == nil {
		s.badRequest(w, fmt.Errorf("field \"active\" is required"))
		return
	}

	if !*request.Active {
		completed, err := s.manager.Stop(r.Context(), uid, sessionType)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		s.writeJSON(w, http.StatusOK, completed)
		return
	}

	params := schema.SessionParams{
		TargetABV:         request.TargetABV,
		TargetPressurePsi: request.TargetPressurePsi,
		AutoComplete:      true,
		UseConservative:   true,
	}
	if params.TargetPressurePsi == nil {
		params.TargetPressurePsi = schema.Float64(5.0)
	}
	if request.AutoComplete != nil {
		params.AutoComplete = *request.AutoComplete
	}
	if request.UseConservative != nil {
		params.UseConservative = *request.UseConservative
	}

	started, err := s.manager.Start(r.Context(), uid, sessionType, params)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, started)
}

type telemetryRequest struct {
	Samples []schema.TelemetryPoint `json:"samples"`
}

func (s *server) handleTelemetry(w http.ResponseWriter, r *http.Request) {
	uid := r.PathValue("uid")
	sessionType, err := schema.ParseSessionType(r.PathValue("sessionType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var request telemetryRequest
	if err := decodeBody(r, &request); err != nil {
		s.badRequest(w, err)
		return
	}

	result, err := s.manager.Ingest(r.Context(), uid, sessionType, request.Samples)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, result)
}

func (s *server) handleActiveSessions(w http.ResponseWriter, r *http.Request) {
	sessionType, err := schema.ParseSessionType(r.PathValue("sessionType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	views := s.manager.Active(sessionType)
	if views == nil {
		views = []session.ActiveSession{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": views})
}

func (s *server) handleSessionHistory(w http.ResponseWriter, r *http.Request) {
	sessionType, err := schema.ParseSessionType(r.PathValue("sessionType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	limit, err := queryInt(r, "limit")
	if err != nil {
		s.badRequest(w, err)
		return
	}
	offset, err := queryInt(r, "offset")
	if err != nil {
		s.badRequest(w, err)
		return
	}

	sessions, err := s.store.SessionHistory(r.Context(), sessionType, store.HistoryFilter{
		UID:    r.URL.Query().Get("uid"),
		Limit:  limit,
		Offset: offset,
	})
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if sessions == nil {
		sessions = []*schema.Session{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"sessions": sessions})
}

func (s *server) handleSessionPoints(w http.ResponseWriter, r *http.Request) {
	sessionType, err := schema.ParseSessionType(r.PathValue("sessionType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}
	guid := r.PathValue("guid")

	record, points, err := s.manager.Points(r.Context(), guid)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	// A guid reached through the wrong session-type path is a miss,
	// not a disclosure.
	if record.Type != sessionType {
		s.writeError(w, r, &store.NotFoundError{Kind: "session", Key: guid})
		return
	}
	if points == nil {
		points = []schema.TelemetryPoint{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{
		"session": record,
		"points":  points,
	})
}

func (s *server) handleListRecipes(w http.ResponseWriter, r *http.Request) {
	device, err := recipe.ParseDeviceType(r.PathValue("deviceType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	recipes, err := s.recipes.List(device)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if recipes == nil {
		recipes = []*recipe.Recipe{}
	}
	s.writeJSON(w, http.StatusOK, map[string]any{"recipes": recipes})
}

func (s *server) handleGetRecipe(w http.ResponseWriter, r *http.Request) {
	device, err := recipe.ParseDeviceType(r.PathValue("deviceType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	found, err := s.recipes.Get(device, r.PathValue("id"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	s.writeJSON(w, http.StatusOK, found)
}

// recipeResponse carries a normalized recipe plus, when the request
// asked for persistence, where it landed.
type recipeResponse struct {
	Recipe  *recipe.Recipe     `json:"recipe"`
	Storage *recipe.SaveResult `json:"storage,omitempty"`
}

type templateRecipeRequest struct {
	Template string `json:"template"`
	Name     string `json:"name"`
	Save     bool   `json:"save"`
}

func (s *server) handleRecipeFromTemplate(w http.ResponseWriter, r *http.Request) {
	device, err := recipe.ParseDeviceType(r.PathValue("deviceType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var request templateRecipeRequest
	if err := decodeBody(r, &request); err != nil {
		s.badRequest(w, err)
		return
	}
	template, ok := recipe.TemplateByID(request.Template)
	if !ok {
		s.badRequest(w, fmt.Errorf("unknown template %q; available: %s",
			request.Template, strings.Join(templateIDs(), ", ")))
		return
	}

	s.buildAndRespond(w, r, template.Params(request.Name), device, request.Save)
}

type customRecipeRequest struct {
	recipe.Params
	Save bool `json:"save"`
}

func (s *server) handleRecipeFromParams(w http.ResponseWriter, r *http.Request) {
	device, err := recipe.ParseDeviceType(r.PathValue("deviceType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var request customRecipeRequest
	if err := decodeBody(r, &request); err != nil {
		s.badRequest(w, err)
		return
	}
	if request.Name == "" {
		s.badRequest(w, fmt.Errorf("field \"name\" is required"))
		return
	}

	s.buildAndRespond(w, r, request.Params, device, request.Save)
}

// buildAndRespond is the shared tail of the template and custom
// recipe endpoints: expand the params, check the result against the
// device protocol, optionally persist.
func (s *server) buildAndRespond(w http.ResponseWriter, r *http.Request, params recipe.Params, device recipe.DeviceType, save bool) {
	built, err := recipe.Build(params, device)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	if err := recipe.Validate(built); err != nil {
		s.writeError(w, r, err)
		return
	}

	response := recipeResponse{Recipe: built}
	if save {
		result, err := s.recipes.Save(built, recipe.SaveOptions{})
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		response.Storage = result
	}
	s.writeJSON(w, http.StatusOK, response)
}

type uploadRecipeRequest struct {
	Filename      string `json:"filename"`
	ContentBase64 string `json:"content_base64"`
	Overwrite     bool   `json:"overwrite"`
}

type uploadRecipeResponse struct {
	Recipes []*recipe.Recipe     `json:"recipes"`
	Saved   []*recipe.SaveResult `json:"saved"`
}

// handleRecipeUpload accepts a BeerXML document or a single recipe
// JSON file and persists the normalized result into the device's
// partition. BeerXML may carry several recipes; each one is built
// and saved.
func (s *server) handleRecipeUpload(w http.ResponseWriter, r *http.Request) {
	device, err := recipe.ParseDeviceType(r.PathValue("deviceType"))
	if err != nil {
		s.badRequest(w, err)
		return
	}

	var request uploadRecipeRequest
	if err := decodeBody(r, &request); err != nil {
		s.badRequest(w, err)
		return
	}
	content, err := base64.StdEncoding.DecodeString(request.ContentBase64)
	if err != nil {
		s.badRequest(w, fmt.Errorf("decoding content_base64: %w", err))
		return
	}

	var built []*recipe.Recipe
	if looksLikeXML(content) {
		paramsList, err := recipe.ParseBeerXML(content)
		if err != nil {
			s.badRequest(w, fmt.Errorf("parsing BeerXML: %w", err))
			return
		}
		for _, params := range paramsList {
			expanded, err := recipe.Build(params, device)
			if err != nil {
				s.writeError(w, r, err)
				return
			}
			built = append(built, expanded)
		}
	} else {
		var uploaded recipe.Recipe
		if err := json.Unmarshal(content, &uploaded); err != nil {
			s.badRequest(w, fmt.Errorf("parsing recipe JSON: %w", err))
			return
		}
		if err := recipe.CheckDevice(&uploaded, device); err != nil {
			s.writeError(w, r, err)
			return
		}
		if err := recipe.Validate(&uploaded); err != nil {
			s.writeError(w, r, err)
			return
		}
		built = append(built, &uploaded)
	}

	response := uploadRecipeResponse{Recipes: built, Saved: []*recipe.SaveResult{}}
	for _, expanded := range built {
		options := recipe.SaveOptions{Overwrite: request.Overwrite}
		// An explicit filename only makes sense for a single recipe;
		// multi-recipe BeerXML derives names per recipe.
		if len(built) == 1 {
			options.Filename = request.Filename
		}
		result, err := s.recipes.Save(expanded, options)
		if err != nil {
			s.writeError(w, r, err)
			return
		}
		response.Saved = append(response.Saved, result)
	}
	s.writeJSON(w, http.StatusOK, response)
}

// looksLikeXML sniffs uploaded content: BeerXML starts with a tag or
// an XML declaration (possibly behind a BOM), recipe JSON with a
// brace.
func looksLikeXML(content []byte) bool {
	trimmed := strings.TrimLeftFunc(string(content), func(r rune) bool {
		return r == ' ' || r == '\t' || r == '\n' || r == '\r' || r == '\ufeff'
	})
	return strings.HasPrefix(trimmed, "<")
}

func templateIDs() []string {
	templates := recipe.Templates()
	ids := make([]string, 0, len(templates))
	for _, template := range templates {
		ids = append(ids, template.ID)
	}
	return ids
}

// queryInt parses an optional non-negative integer query parameter.
func queryInt(r *http.Request, name string) (int, error) {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return 0, nil
	}
	value, err := strconv.Atoi(raw)
	if err != nil || value < 0 {
		return 0, fmt.Errorf("query parameter %q must be a non-negative integer", name)
	}
	return value, nil
}
