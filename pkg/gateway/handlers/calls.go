package handlers

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/apierror"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/live/sessions"
	"github.com/dispatchvoice/dispatchvoice/pkg/gateway/mw"
)

// CallDecisionHandler applies a dispatcher's confirm or reject of a
// held booking to the live call. Routed as POST /calls/{callSid}/confirm
// and POST /calls/{callSid}/reject.
type CallDecisionHandler struct {
	Tracker *sessions.Tracker
	Confirm bool
}

func (h CallDecisionHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	reqID, _ := mw.RequestIDFrom(r.Context())

	callSID := strings.TrimSpace(r.PathValue("callSid"))
	if callSID == "" {
		apierror.Write(w, &apierror.Error{
			Type:      apierror.ErrInvalidRequest,
			Message:   "call sid is required",
			Param:     "callSid",
			RequestID: reqID,
		})
		return
	}

	handle, ok := h.Tracker.Lookup(callSID)
	if !ok {
		apierror.Write(w, &apierror.Error{
			Type:      apierror.ErrNotFound,
			Message:   "no live call with that sid",
			Param:     "callSid",
			RequestID: reqID,
		})
		return
	}

	var err error
	if h.Confirm {
		err = handle.ConfirmBooking()
	} else {
		err = handle.RejectBooking()
	}
	if err != nil {
		// The call exists but is not holding a booking right now.
		apierror.Write(w, &apierror.Error{
			Type:      apierror.ErrConflict,
			Message:   err.Error(),
			RequestID: reqID,
		})
		return
	}

	decision := "rejected"
	if h.Confirm {
		decision = "confirmed"
	}
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(http.StatusOK)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"callSid":  callSID,
		"decision": decision,
	})
}
