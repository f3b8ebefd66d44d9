// Package mail composes outbound email and hands it to a Transport,
// with per-message-kind convenience wrappers and bounded retries.
package mail

// Message is what callers hand to the dispatcher. It is ephemeral and
// never persisted.
type Message struct {
	// To is the single recipient address. Required.
	To string `json:"to"`
	// Subject is required.
	Subject string `json:"subject"`
	// HTML, when set, is used verbatim as the body and templating is
	// skipped entirely.
	HTML string `json:"html,omitempty"`
	// Text is the plain body. When HTML is empty it also seeds the
	// template's body variable.
	Text string `json:"text,omitempty"`
	// Variables overlay the seeded template variables; caller keys win.
	// Only consulted when HTML is empty.
	Variables map[string]string `json:"variables,omitempty"`
}

// Outbound is a fully composed message ready for the transport.
type Outbound struct {
	From    string
	To      string
	Subject string
	HTML    string
	// Text rides along even when HTML was rendered, for multipart
	// delivery.
	Text string
}

// Receipt acknowledges a successful handoff to the transport.
type Receipt struct {
	// MessageID is the transport-assigned identifier.
	MessageID string `json:"message_id"`
}

// PropertySummary carries the listing fields interpolated into the
// property-notification template. Zero values for MatchScore and the
// URLs fall back to the platform's placeholder defaults.
type PropertySummary struct {
	Title         string `json:"title"`
	Price         string `json:"price"`
	Size          string `json:"size"`
	Bedrooms      string `json:"bedrooms"`
	Bathrooms     string `json:"bathrooms"`
	ParkingSpots  string `json:"parking_spots"`
	Location      string `json:"location"`
	Description   string `json:"description"`
	MatchScore    string `json:"match_score,omitempty"`
	ListingURL    string `json:"listing_url,omitempty"`
	SchedulingURL string `json:"scheduling_url,omitempty"`
}
