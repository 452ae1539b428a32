// Package nlu extracts structured meaning from caller transcripts.
package nlu

import "time"

// Urgency classifies how soon the job needs attention.
type Urgency string

const (
	UrgencyEmergency Urgency = "emergency"
	UrgencySameDay   Urgency = "sameDay"
	UrgencyFlex      Urgency = "flex"
)

// Customer identifies the caller.
type Customer struct {
	Name  string `json:"name,omitempty"`
	Phone string `json:"phone,omitempty"`
}

// Location is where the job is.
type Location struct {
	RawAddress string `json:"rawAddress,omitempty"`
}

// Confidence carries extraction confidence scores in [0,1].
type Confidence struct {
	Overall     float64            `json:"overall"`
	IntentClass float64            `json:"intentClass"`
	PerField    map[string]float64 `json:"perField,omitempty"`
}

// IntentRecord is the accumulated understanding of what the caller wants.
// It is filled in incrementally across turns.
type IntentRecord struct {
	JobType    string     `json:"jobType,omitempty"`
	Urgency    Urgency    `json:"urgency,omitempty"`
	Customer   Customer   `json:"customer"`
	Location   Location   `json:"location"`
	Notes      string     `json:"notes,omitempty"`
	Confidence Confidence `json:"confidence"`
}

// Merge folds a per-turn extraction into the accumulated record. Empty
// fields in the update never erase earlier answers; a non-empty field
// wins only when its confidence is at least as high as what we had.
func (r *IntentRecord) Merge(update *IntentRecord) {
	if update == nil {
		return
	}
	if r.Confidence.PerField == nil {
		r.Confidence.PerField = make(map[string]float64)
	}

	merge := func(field, val string, dst *string) {
		if val == "" {
			return
		}
		if *dst != "" && update.fieldConfidence(field) < r.Confidence.PerField[field] {
			return
		}
		*dst = val
		r.Confidence.PerField[field] = update.fieldConfidence(field)
	}

	merge("jobType", update.JobType, &r.JobType)
	merge("name", update.Customer.Name, &r.Customer.Name)
	merge("phone", update.Customer.Phone, &r.Customer.Phone)
	merge("address", update.Location.RawAddress, &r.Location.RawAddress)

	if update.Urgency != "" {
		if r.Urgency == "" || update.fieldConfidence("urgency") >= r.Confidence.PerField["urgency"] {
			r.Urgency = update.Urgency
			r.Confidence.PerField["urgency"] = update.fieldConfidence("urgency")
		}
	}
	if update.Notes != "" {
		if r.Notes != "" {
			r.Notes = r.Notes + "; " + update.Notes
		} else {
			r.Notes = update.Notes
		}
	}
	if update.Confidence.Overall > 0 {
		r.Confidence.Overall = update.Confidence.Overall
	}
	if update.Confidence.IntentClass > 0 {
		r.Confidence.IntentClass = update.Confidence.IntentClass
	}
}

func (r *IntentRecord) fieldConfidence(field string) float64 {
	if v, ok := r.Confidence.PerField[field]; ok {
		return v
	}
	return r.Confidence.Overall
}

// MissingFields lists the booking-critical fields not yet captured.
func (r *IntentRecord) MissingFields() []string {
	var missing []string
	if r.Customer.Name == "" {
		missing = append(missing, "name")
	}
	if r.JobType == "" {
		missing = append(missing, "jobType")
	}
	if r.Urgency == "" {
		missing = append(missing, "urgency")
	}
	return missing
}

// TimeResult is a resolved time expression.
type TimeResult struct {
	Start      time.Time `json:"start"`
	Confidence float64   `json:"confidence"`
}
