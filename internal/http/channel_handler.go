package http

import (
	"net/http"

	"github.com/fjod/go_pos/internal/channel"
)

// ChannelController is the part of channel.Supervisor the UI drives.
type ChannelController interface {
	State() channel.ConnState
	Polling() bool
	Resume()
	Disconnect()
	SetOnline(online bool)
	SetVisible(visible bool)
}

type ChannelHandler struct {
	channel ChannelController
}

func NewChannelHandler(c ChannelController) *ChannelHandler {
	return &ChannelHandler{channel: c}
}

type ChannelStatusDTO struct {
	State   channel.ConnState `json:"state"`
	Polling bool              `json:"polling"`
}

type OnlineRequestDTO struct {
	Online *bool `json:"online"`
}

type VisibilityRequestDTO struct {
	Visible *bool `json:"visible"`
}

// GET /api/v1/channel
func (h *ChannelHandler) Status(w http.ResponseWriter, r *http.Request) {
	respondJSON(w, http.StatusOK, h.status())
}

// POST /api/v1/channel/resume
func (h *ChannelHandler) Resume(w http.ResponseWriter, r *http.Request) {
	h.channel.Resume()
	respondJSON(w, http.StatusAccepted, h.status())
}

// POST /api/v1/channel/disconnect
func (h *ChannelHandler) Disconnect(w http.ResponseWriter, r *http.Request) {
	h.channel.Disconnect()
	respondJSON(w, http.StatusAccepted, h.status())
}

// PUT /api/v1/channel/online
func (h *ChannelHandler) SetOnline(w http.ResponseWriter, r *http.Request) {
	var req OnlineRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Online == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "online is required")
		return
	}
	h.channel.SetOnline(*req.Online)
	respondJSON(w, http.StatusAccepted, h.status())
}

// PUT /api/v1/channel/visibility
func (h *ChannelHandler) SetVisibility(w http.ResponseWriter, r *http.Request) {
	var req VisibilityRequestDTO
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Visible == nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "visible is required")
		return
	}
	h.channel.SetVisible(*req.Visible)
	respondJSON(w, http.StatusOK, h.status())
}

func (h *ChannelHandler) status() ChannelStatusDTO {
	return ChannelStatusDTO{State: h.channel.State(), Polling: h.channel.Polling()}
}
