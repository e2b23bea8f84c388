package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/lazypower/calibrator/internal/calibration"
	"github.com/lazypower/calibrator/internal/engine"
	"github.com/lazypower/calibrator/internal/store"
)

func uintParam(r *http.Request, name string) (uint64, bool) {
	v, err := strconv.ParseUint(chi.URLParam(r, name), 10, 64)
	return v, err == nil
}

func itemParams(w http.ResponseWriter, r *http.Request) (uint64, uint64, bool) {
	groupID, ok := uintParam(r, "groupID")
	if !ok {
		badRequest(w, "invalid group id")
		return 0, 0, false
	}
	itemID, ok := uintParam(r, "itemID")
	if !ok || itemID == 0 {
		badRequest(w, "invalid item id")
		return 0, 0, false
	}
	return groupID, itemID, true
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		badRequest(w, "invalid json")
		return false
	}
	return true
}

// Groups

func (s *Server) handleListGroups(w http.ResponseWriter, r *http.Request) {
	groups, err := s.engine.Groups(r.Context())
	if err != nil {
		writeError(w, err)
		return
	}
	if groups == nil {
		groups = []calibration.Group{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"groups": groups})
}

func (s *Server) handleRegisterGroup(w http.ResponseWriter, r *http.Request) {
	var g calibration.Group
	if !decode(w, r, &g) {
		return
	}
	created, err := s.engine.RegisterGroup(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

func (s *Server) handleGetGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := uintParam(r, "groupID")
	if !ok {
		badRequest(w, "invalid group id")
		return
	}
	g, err := s.engine.Group(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, g)
}

func (s *Server) handleUpdateGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := uintParam(r, "groupID")
	if !ok {
		badRequest(w, "invalid group id")
		return
	}
	var g calibration.Group
	if !decode(w, r, &g) {
		return
	}
	g.ID = groupID
	updated, err := s.engine.UpdateGroup(r.Context(), g)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, updated)
}

func (s *Server) handleDeregisterGroup(w http.ResponseWriter, r *http.Request) {
	groupID, ok := uintParam(r, "groupID")
	if !ok {
		badRequest(w, "invalid group id")
		return
	}
	if err := s.engine.DeregisterGroup(r.Context(), groupID); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "deregistered"})
}

// Settings. Group 0 addresses the global default.

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	groupID, ok := uintParam(r, "groupID")
	if !ok {
		badRequest(w, "invalid group id")
		return
	}
	settings, err := s.engine.Settings(r.Context(), groupID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

func (s *Server) handlePutSettings(w http.ResponseWriter, r *http.Request) {
	groupID, ok := uintParam(r, "groupID")
	if !ok {
		badRequest(w, "invalid group id")
		return
	}
	var settings calibration.Settings
	if !decode(w, r, &settings) {
		return
	}
	if err := s.engine.SetSettings(r.Context(), groupID, settings); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, settings)
}

// Items

type callerRequest struct {
	Caller calibration.Address `json:"caller"`
	Points int                 `json:"points"`
	Locked bool                `json:"locked"`
}

func (s *Server) handleProbe(w http.ResponseWriter, r *http.Request) {
	groupID, itemID, ok := itemParams(w, r)
	if !ok {
		return
	}
	p, err := s.engine.Probe(r.Context(), groupID, itemID)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (s *Server) handleAuthorize(w http.ResponseWriter, r *http.Request) {
	groupID, itemID, ok := itemParams(w, r)
	if !ok {
		return
	}
	caller, err := calibration.ParseAddress(r.URL.Query().Get("caller"))
	if err != nil {
		badRequest(w, "invalid caller")
		return
	}
	auth, err := s.engine.Authorize(r.Context(), groupID, itemID, caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, auth)
}

func (s *Server) handleInspect(w http.ResponseWriter, r *http.Request) {
	groupID, itemID, ok := itemParams(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Inspect(r.Context(), groupID, itemID, req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleRepair(w http.ResponseWriter, r *http.Request) {
	groupID, itemID, ok := itemParams(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := s.engine.Repair(r.Context(), groupID, itemID, req.Caller, req.Points)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleCharge(w http.ResponseWriter, r *http.Request) {
	groupID, itemID, ok := itemParams(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.engine.Charge(r.Context(), groupID, itemID, req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

func (s *Server) handleLock(w http.ResponseWriter, r *http.Request) {
	groupID, itemID, ok := itemParams(w, r)
	if !ok {
		return
	}
	var req callerRequest
	if !decode(w, r, &req) {
		return
	}
	rec, err := s.engine.SetLocked(r.Context(), groupID, itemID, req.Caller, req.Locked)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// Batches

type batchRequest struct {
	Caller   calibration.Address `json:"caller"`
	GroupIDs []uint64            `json:"group_ids"`
	ItemIDs  []uint64            `json:"item_ids"`
}

func (s *Server) decodeBatch(w http.ResponseWriter, r *http.Request) (*batchRequest, []calibration.Key, bool) {
	var req batchRequest
	if !decode(w, r, &req) {
		return nil, nil, false
	}
	keys, err := engine.Pairs(req.GroupIDs, req.ItemIDs)
	if err != nil {
		writeError(w, err)
		return nil, nil, false
	}
	return &req, keys, true
}

func (s *Server) handleInspectBatch(w http.ResponseWriter, r *http.Request) {
	req, keys, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	res, err := s.engine.InspectBatch(r.Context(), keys, req.Caller)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, res)
}

func (s *Server) handleBatchExists(w http.ResponseWriter, r *http.Request) {
	_, keys, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	exists, err := s.engine.BatchExists(r.Context(), keys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"exists": exists})
}

func (s *Server) handleBatchRecords(w http.ResponseWriter, r *http.Request) {
	_, keys, ok := s.decodeBatch(w, r)
	if !ok {
		return
	}
	records, err := s.engine.BatchRecords(r.Context(), keys)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"records": records})
}

// Access and ledger

func (s *Server) handleSetProcessor(w http.ResponseWriter, r *http.Request) {
	addr, err := calibration.ParseAddress(chi.URLParam(r, "address"))
	if err != nil {
		badRequest(w, "invalid address")
		return
	}
	var req struct {
		Approved bool `json:"approved"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetProcessor(r.Context(), addr, req.Approved); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": addr, "approved": req.Approved})
}

func (s *Server) handleSetStakingContract(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Address calibration.Address `json:"address"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.SetStakingContract(r.Context(), req.Address); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"address": req.Address})
}

func (s *Server) handleMint(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Currency calibration.Address `json:"currency"`
		Holder   calibration.Address `json:"holder"`
		Amount   uint64              `json:"amount"`
	}
	if !decode(w, r, &req) {
		return
	}
	if err := s.engine.Mint(r.Context(), req.Currency, req.Holder, req.Amount); err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]string{"status": "minted"})
}

func (s *Server) handleBalance(w http.ResponseWriter, r *http.Request) {
	currency, err := calibration.ParseAddress(chi.URLParam(r, "currency"))
	if err != nil {
		badRequest(w, "invalid currency")
		return
	}
	holder, err := calibration.ParseAddress(chi.URLParam(r, "holder"))
	if err != nil {
		badRequest(w, "invalid holder")
		return
	}
	bal, err := s.engine.Balance(r.Context(), currency, holder)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"currency": currency, "holder": holder, "balance": bal})
}

// Events

func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := 50
	if v := q.Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			badRequest(w, "invalid limit")
			return
		}
		limit = n
	}
	var key calibration.Key
	if v := q.Get("group"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(w, "invalid group")
			return
		}
		key.GroupID = id
	}
	if v := q.Get("item"); v != "" {
		id, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			badRequest(w, "invalid item")
			return
		}
		key.ItemID = id
	}

	events, err := s.engine.Events(r.Context(), key, limit)
	if err != nil {
		writeError(w, err)
		return
	}
	if events == nil {
		events = []store.Event{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"events": events, "count": len(events)})
}
