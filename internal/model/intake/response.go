package intake

import (
	"encoding/json"
	"fmt"
)

// Response kinds as sent in the "type" field.
const (
	KindFAQ          = "faq"
	KindStatusQuery  = "statusQuery"
	KindNewComplaint = "newComplaint"
)

// Response is one of FAQ, StatusQuery, NewComplaint or Unrecognized.
// Consumers dispatch with Accept so that a new variant breaks every
// Visitor at compile time instead of falling into a default branch.
type Response interface {
	Accept(v Visitor)
	Kind() string
}

// Visitor handles every response variant.
type Visitor interface {
	VisitFAQ(FAQ)
	VisitStatusQuery(StatusQuery)
	VisitNewComplaint(NewComplaint)
	VisitUnrecognized(Unrecognized)
}

// FAQ carries a canned answer.
type FAQ struct {
	Answer string `json:"answer"`
}

// StatusQuery reports the state of an existing complaint.
type StatusQuery struct {
	ComplaintID  string `json:"complaintId"`
	Status       string `json:"status"`
	Department   string `json:"department"`
	LocationName string `json:"locationName,omitempty"`
}

// NewComplaint is the answer to a complaint submission. An empty TicketID
// means the backend needs coordinates before it can register the complaint.
type NewComplaint struct {
	TicketID   string `json:"ticketId,omitempty"`
	Message    string `json:"message"`
	Status     string `json:"status,omitempty"`
	Department string `json:"department,omitempty"`
}

// Registered reports whether the backend issued a ticket.
func (n NewComplaint) Registered() bool {
	return n.TicketID != ""
}

// Unrecognized keeps responses whose type this client does not know.
type Unrecognized struct {
	Type     string `json:"type"`
	Message  string `json:"message,omitempty"`
	Response string `json:"response,omitempty"`
}

// Text returns the free-text field of the response, if any.
func (u Unrecognized) Text() string {
	if u.Message != "" {
		return u.Message
	}
	return u.Response
}

func (r FAQ) Accept(v Visitor)          { v.VisitFAQ(r) }
func (r StatusQuery) Accept(v Visitor)  { v.VisitStatusQuery(r) }
func (r NewComplaint) Accept(v Visitor) { v.VisitNewComplaint(r) }
func (r Unrecognized) Accept(v Visitor) { v.VisitUnrecognized(r) }

func (FAQ) Kind() string            { return KindFAQ }
func (StatusQuery) Kind() string    { return KindStatusQuery }
func (NewComplaint) Kind() string   { return KindNewComplaint }
func (u Unrecognized) Kind() string { return u.Type }

// Decode parses a response body into its variant.
func Decode(data []byte) (Response, error) {
	var head struct {
		Type string `json:"type"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode intake response: %w", err)
	}

	var (
		resp Response
		err  error
	)
	switch head.Type {
	case KindFAQ:
		var v FAQ
		err = json.Unmarshal(data, &v)
		resp = v
	case KindStatusQuery:
		var v StatusQuery
		err = json.Unmarshal(data, &v)
		resp = v
	case KindNewComplaint:
		var v NewComplaint
		err = json.Unmarshal(data, &v)
		resp = v
	default:
		var v Unrecognized
		err = json.Unmarshal(data, &v)
		resp = v
	}
	if err != nil {
		return nil, fmt.Errorf("decode %q intake response: %w", head.Type, err)
	}
	return resp, nil
}
