package domain

// Request is one entry of a page's request log.
type Request struct {
	Type     RequestType `json:"type"`
	Hostname string      `json:"hostname"`
	URL      string      `json:"url"`
	Blocked  bool        `json:"blocked"`
}

// Key identifies a request within its page log.
func (r Request) Key() string {
	return r.Type.String() + " " + r.URL
}

// Decision is the verdict for one outgoing request.
type Decision struct {
	Hue       Hue  `json:"hue"`
	Blocked   bool `json:"blocked"`
	Filtering bool `json:"filtering"`
}
