package events

// Filter selects events for a consumer such as a dashboard websocket client.
// Empty fields match everything.
type Filter struct {
	Kinds      []Kind `json:"kinds,omitempty"`
	EndpointID string `json:"endpoint_id,omitempty"`
}

// Matches reports whether e passes the filter. Events that are not scoped to
// an endpoint pass an endpoint filter.
func (f Filter) Matches(e Event) bool {
	if len(f.Kinds) > 0 {
		found := false
		for _, k := range f.Kinds {
			if k == e.Kind() {
				found = true
				break
			}
		}
		if !found {
			return false
		}
	}

	if f.EndpointID != "" {
		if ep := EndpointOf(e); ep != "" && ep != f.EndpointID {
			return false
		}
	}
	return true
}

// ParseKinds converts names into kinds, dropping unknown names
func ParseKinds(names []string) []Kind {
	known := make(map[Kind]struct{})
	for _, k := range Kinds() {
		known[k] = struct{}{}
	}

	var kinds []Kind
	for _, n := range names {
		if _, ok := known[Kind(n)]; ok {
			kinds = append(kinds, Kind(n))
		}
	}
	return kinds
}
