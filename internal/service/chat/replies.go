package chat

import (
	"fmt"
	"strings"

	geomodel "github.com/jansunwai/assistant/internal/model/geo"
	intakemodel "github.com/jansunwai/assistant/internal/model/intake"
)

const (
	textTrouble          = "⚠️ Sorry, I'm having trouble responding right now. Please try again in a moment."
	textStillWorking     = "⏳ Still working on it, this is taking a little longer than usual..."
	textNeedLocation     = "📍 I need your location to register this complaint. Fetching it now..."
	textLocationFailed   = "⚠️ I couldn't get your location, so the complaint was not registered. Please mention the area or a landmark and try again."
	textAcknowledged     = "Thanks! I've noted your message."
	textImageReceived    = "📷 Thanks, I've received your photo. Describe the problem and I'll add it to your complaint."
	textLocationDetected = "📍 Location detected (%.4f, %.4f). I'll attach it to your complaints."
)

// reply is the bot turn derived from one intake response.
type reply struct {
	text             string
	needsCoordinates bool
}

// replyBuilder renders every intake response variant.
type replyBuilder struct {
	reply
}

var _ intakemodel.Visitor = (*replyBuilder)(nil)

func describe(resp intakemodel.Response) reply {
	b := &replyBuilder{}
	resp.Accept(b)
	return b.reply
}

func (b *replyBuilder) VisitFAQ(r intakemodel.FAQ) {
	b.text = r.Answer
	if strings.TrimSpace(b.text) == "" {
		b.text = textAcknowledged
	}
}

func (b *replyBuilder) VisitStatusQuery(r intakemodel.StatusQuery) {
	var sb strings.Builder
	fmt.Fprintf(&sb, "📋 Complaint %s\nStatus: %s\nDepartment: %s", r.ComplaintID, r.Status, r.Department)
	if r.LocationName != "" {
		fmt.Fprintf(&sb, "\nLocation: %s", r.LocationName)
	}
	b.text = sb.String()
}

func (b *replyBuilder) VisitNewComplaint(r intakemodel.NewComplaint) {
	if r.Registered() {
		b.text = fmt.Sprintf("✅ Your complaint has been registered!\nTicket ID: %s\nStatus: %s\nDepartment: %s",
			r.TicketID, r.Status, r.Department)
		return
	}
	b.needsCoordinates = true
	b.text = r.Message
	if strings.TrimSpace(b.text) == "" {
		b.text = textNeedLocation
	}
}

func (b *replyBuilder) VisitUnrecognized(r intakemodel.Unrecognized) {
	b.text = r.Text()
	if strings.TrimSpace(b.text) == "" {
		b.text = textAcknowledged
	}
}

func locationDetected(snap geomodel.Snapshot) string {
	return fmt.Sprintf(textLocationDetected, snap.Latitude, snap.Longitude)
}
