// Package handler exposes the session state and the user-action surface to
// the view collaborator over a local HTTP API. It is a thin adapter: every
// action is dispatched to the lifecycle machine by stable identifier, no
// state lives here.
package handler

import (
	"encoding/json"
	"net/http"

	"github.com/chatsphere/internal/lifecycle"
	"github.com/chatsphere/internal/model"
	"github.com/chatsphere/internal/presence"
)

type StateHandler struct {
	machine *lifecycle.Machine
	roster  *presence.Tracker
}

func NewStateHandler(machine *lifecycle.Machine, roster *presence.Tracker) *StateHandler {
	return &StateHandler{machine: machine, roster: roster}
}

type stateResponse struct {
	View  lifecycle.ViewState `json:"view"`
	Users []model.User        `json:"users"`
}

// GetState returns the full render state: tabs, indicators, roster, active
// conversation and input flags.
func (h *StateHandler) GetState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, stateResponse{
		View:  h.machine.ViewState(),
		Users: h.roster.All(),
	})
}

// actionRequest carries one user action keyed by stable identifiers.
type actionRequest struct {
	Action  string `json:"action"`
	Channel string `json:"channel,omitempty"`
	From    string `json:"from,omitempty"`
	Name    string `json:"name,omitempty"`
	To      string `json:"to,omitempty"`
	Message string `json:"message,omitempty"`
}

// PostAction dispatches one user action to the lifecycle machine.
func (h *StateHandler) PostAction(w http.ResponseWriter, r *http.Request) {
	var req actionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	switch req.Action {
	case "join_channel":
		if req.Channel == "" {
			writeError(w, http.StatusBadRequest, "channel required")
			return
		}
		h.machine.OpenChannel(req.Channel)
	case "select_channel":
		if req.Channel == "" {
			writeError(w, http.StatusBadRequest, "channel required")
			return
		}
		h.machine.SelectChannel(req.Channel)
	case "close_channel":
		if req.Channel == "" {
			writeError(w, http.StatusBadRequest, "channel required")
			return
		}
		h.machine.CloseChannel(req.Channel)
	case "select_request":
		if req.From == "" {
			writeError(w, http.StatusBadRequest, "from required")
			return
		}
		h.machine.SelectRequest(req.From)
	case "accept_request":
		if req.From == "" {
			writeError(w, http.StatusBadRequest, "from required")
			return
		}
		h.machine.AcceptRequest(req.From)
	case "close_request":
		if req.From == "" {
			writeError(w, http.StatusBadRequest, "from required")
			return
		}
		h.machine.CloseRequest(req.From)
	case "select_chat":
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name required")
			return
		}
		h.machine.SelectChat(req.Name)
	case "close_chat":
		if req.Name == "" {
			writeError(w, http.StatusBadRequest, "name required")
			return
		}
		h.machine.CloseChat(req.Name)
	case "request_private_chat":
		if req.To == "" {
			writeError(w, http.StatusBadRequest, "to required")
			return
		}
		h.machine.RequestPrivateChat(req.To)
	case "send_message":
		if req.Message == "" {
			writeError(w, http.StatusBadRequest, "message required")
			return
		}
		h.machine.SendMessage(req.Message)
	default:
		writeError(w, http.StatusBadRequest, "unknown action")
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
