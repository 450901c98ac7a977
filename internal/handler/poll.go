package handler

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/sakif/pollar/internal/service"
)

// VoteMarkerPrefix names the per-poll cookie set after an accepted vote.
const VoteMarkerPrefix = "poll_vote_"

const voteMarkerTTL = 30 * 24 * time.Hour

// PollHandler serves the public voting endpoints. Neither route needs a
// session: voting is anonymous.
type PollHandler struct {
	votes        *service.VoteService
	cookieSecure bool
	logger       *slog.Logger
}

// NewPollHandler creates a PollHandler. cookieSecure marks the vote marker
// cookie Secure.
func NewPollHandler(votes *service.VoteService, cookieSecure bool, logger *slog.Logger) *PollHandler {
	return &PollHandler{votes: votes, cookieSecure: cookieSecure, logger: logger}
}

// pollResponse is the poll view plus whether this browser already voted.
type pollResponse struct {
	*service.PollView
	HasVoted bool `json:"hasVoted"`
}

// HandleGet returns a poll with its current counts.
//
// HTTP: GET /poll?pollId=<id>
func (h *PollHandler) HandleGet(w http.ResponseWriter, r *http.Request) {
	view, err := h.votes.GetPollView(r.Context(), r.URL.Query().Get("pollId"))
	if err != nil {
		writeError(w, err)
		return
	}

	_, cookieErr := r.Cookie(VoteMarkerPrefix + view.ID)
	writeOK(w, http.StatusOK, "", pollResponse{PollView: view, HasVoted: cookieErr == nil})
}

type voteRequest struct {
	OptionID       string `json:"optionId"`
	IdempotencyKey string `json:"idempotencyKey"`
}

// HandleVote records one vote.
//
// HTTP: POST /poll
// REQUEST BODY: {"optionId": "...", "idempotencyKey": "<uuid>"}
//
// The key may also come in an Idempotency-Key header; the body wins when
// both are set.
//
// THE MARKER COOKIE:
// After an accepted vote we set poll_vote_<pollId>. It only drives the
// "you already voted" hint in the UI and never blocks a second vote.
func (h *PollHandler) HandleVote(w http.ResponseWriter, r *http.Request) {
	var req voteRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, err)
		return
	}
	if req.IdempotencyKey == "" {
		req.IdempotencyKey = r.Header.Get("Idempotency-Key")
	}

	result, err := h.votes.SubmitVote(r.Context(), req.OptionID, req.IdempotencyKey)
	if err != nil {
		writeError(w, err)
		return
	}

	http.SetCookie(w, &http.Cookie{
		Name:     VoteMarkerPrefix + result.PollID,
		Value:    result.OptionID,
		Path:     "/",
		MaxAge:   int(voteMarkerTTL.Seconds()),
		HttpOnly: true,
		Secure:   h.cookieSecure,
		SameSite: http.SameSiteLaxMode,
	})

	message := "Vote recorded successfully"
	if result.Replayed {
		message = "Vote already recorded"
	}
	writeOK(w, http.StatusOK, message, result)
}
