package intake

// Request is the body posted to the complaint-intake endpoint.
type Request struct {
	RawText string   `json:"rawText"`
	Lat     *float64 `json:"lat,omitempty"`
	Lng     *float64 `json:"lng,omitempty"`
}

// WithCoordinates returns a copy of r carrying the given position.
func (r Request) WithCoordinates(lat, lng float64) Request {
	r.Lat = &lat
	r.Lng = &lng
	return r
}

// HasCoordinates reports whether both coordinates are set.
func (r Request) HasCoordinates() bool {
	return r.Lat != nil && r.Lng != nil
}
