package api

import (
	"io"
	"net/http"
	"strconv"

	"grimm.is/tollgate/internal/config"
	"grimm.is/tollgate/internal/firewall"
)

// RuleResponse is the external shape of a rule.
type RuleResponse struct {
	firewall.RuleRecord
	Position int `json:"position"`
}

func rulesResponse(rules []*firewall.Rule) []RuleResponse {
	out := make([]RuleResponse, len(rules))
	for i, r := range rules {
		out[i] = RuleResponse{RuleRecord: r.Record(), Position: i}
	}
	return out
}

func (s *Server) handleGetRules(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, rulesResponse(s.engine.Rules()))
}

// handleAddRule appends a rule, or inserts it when ?index=N is given.
// Out-of-range indexes clamp to the ends of the list.
func (s *Server) handleAddRule(w http.ResponseWriter, r *http.Request) {
	var rec firewall.RuleRecord
	if err := decodeJSON(r, &rec); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid rule", err.Error())
		return
	}
	rule, err := firewall.BuildRule(rec)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid rule", err.Error())
		return
	}

	if raw := r.URL.Query().Get("index"); raw != "" {
		idx, err := strconv.Atoi(raw)
		if err != nil {
			WriteError(w, http.StatusBadRequest, "invalid index", err.Error())
			return
		}
		s.engine.AddRule(rule, idx)
	} else {
		s.engine.AddRule(rule)
	}

	WriteJSON(w, http.StatusCreated, rule.Record())
}

// handleLoadRules appends a YAML or JSON list of rule records. Nothing is
// added when any record is invalid.
func (s *Server) handleLoadRules(w http.ResponseWriter, r *http.Request) {
	body, err := io.ReadAll(r.Body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "failed to read body", err.Error())
		return
	}
	records, err := config.ParseRuleRecords(body)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid rules", err.Error())
		return
	}
	if err := s.engine.LoadRules(records); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid rules", err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"added": len(records)})
}

func (s *Server) handleRemoveRule(w http.ResponseWriter, r *http.Request) {
	name := r.PathValue("name")
	if !s.engine.RemoveRule(name) {
		WriteError(w, http.StatusNotFound, "rule not found", name)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleClearRules(w http.ResponseWriter, r *http.Request) {
	s.engine.ClearRules()
	w.WriteHeader(http.StatusNoContent)
}

type defaultActionBody struct {
	Action string `json:"action"`
}

func (s *Server) handleGetDefaultAction(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, defaultActionBody{Action: s.engine.DefaultAction().String()})
}

func (s *Server) handleSetDefaultAction(w http.ResponseWriter, r *http.Request) {
	var body defaultActionBody
	if err := decodeJSON(r, &body); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request", err.Error())
		return
	}
	action, err := firewall.ParseAction(body.Action)
	if err != nil {
		WriteError(w, http.StatusBadRequest, "invalid action", err.Error())
		return
	}
	s.engine.SetDefaultAction(action)
	WriteJSON(w, http.StatusOK, defaultActionBody{Action: action.String()})
}

type addressList int

const (
	listWhitelist addressList = iota
	listBlacklist
)

type listMethod int

const (
	methodGet listMethod = iota
	methodAdd
	methodClear
)

// listHandler serves the whitelist and blacklist endpoints, which differ only
// in the engine methods they call.
func (s *Server) listHandler(list addressList, method listMethod) http.HandlerFunc {
	get, add, reset := s.engine.Whitelist, s.engine.AddWhitelist, s.engine.ClearWhitelist
	if list == listBlacklist {
		get, add, reset = s.engine.Blacklist, s.engine.AddBlacklist, s.engine.ClearBlacklist
	}

	return func(w http.ResponseWriter, r *http.Request) {
		switch method {
		case methodGet:
			entries := get()
			if entries == nil {
				entries = []firewall.AddressPattern{}
			}
			WriteJSON(w, http.StatusOK, entries)
		case methodAdd:
			var p firewall.AddressPattern
			if err := decodeJSON(r, &p); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid entry", err.Error())
				return
			}
			add(p)
			WriteJSON(w, http.StatusCreated, p)
		case methodClear:
			reset()
			w.WriteHeader(http.StatusNoContent)
		}
	}
}
