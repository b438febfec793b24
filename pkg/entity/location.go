package entity

// Location is a place in the world. Identity and protection rules match NPC.
type Location struct {
	ID               string `json:"id"`
	Name             string `json:"name"`
	Description      string `json:"description,omitempty"`
	Status           string `json:"status,omitempty"`
	LastEventSummary string `json:"lastEventSummary,omitempty"`
	IsProtected      bool   `json:"isProtected"`
	SortOrder        int    `json:"sortOrder"`
}

// LocationUpdate is a model-issued instruction for one location.
type LocationUpdate struct {
	Action           string  `json:"action"`
	ID               string  `json:"id"`
	Name             *string `json:"name,omitempty"`
	Description      *string `json:"description,omitempty"`
	Status           *string `json:"status,omitempty"`
	LastEventSummary *string `json:"lastEventSummary,omitempty"`
}

// LocationKind implements Kind for locations.
type LocationKind struct{}

var _ Kind[Location, LocationUpdate] = LocationKind{}

func (LocationKind) Label() string { return "location" }

func (LocationKind) EntityID(e Location) string   { return e.ID }
func (LocationKind) EntityName(e Location) string { return e.Name }
func (LocationKind) IsProtected(e Location) bool  { return e.IsProtected }
func (LocationKind) SortOrder(e Location) int     { return e.SortOrder }

func (LocationKind) WithSortOrder(e Location, order int) Location {
	e.SortOrder = order
	return e
}

func (LocationKind) WithProtected(e Location, protected bool) Location {
	e.IsProtected = protected
	return e
}

func (LocationKind) UpdateAction(u LocationUpdate) string { return u.Action }
func (LocationKind) UpdateID(u LocationUpdate) string     { return u.ID }
func (LocationKind) UpdateName(u LocationUpdate) string   { return strValue(u.Name) }

func (LocationKind) WithUpdateID(u LocationUpdate, id string) LocationUpdate {
	u.ID = id
	return u
}

func (LocationKind) Create(u LocationUpdate, sortOrder int) Location {
	l := Location{
		ID:          u.ID,
		Name:        strValue(u.Name),
		Description: strValue(u.Description),
		SortOrder:   sortOrder,
	}
	if l.Name == "" {
		l.Name = u.ID
	}
	return l
}

// Merge applies a location update. Field list:
//
//	name, description           replaced when present and non-empty
//	status, lastEventSummary    owned by the flavor pass, never set here
//	isProtected, sortOrder      owned by manual edits, never set here
func (LocationKind) Merge(e Location, u LocationUpdate) Location {
	setIfPresent(&e.Name, u.Name)
	setIfPresent(&e.Description, u.Description)
	return e
}

func (LocationKind) StripNarrative(u LocationUpdate) LocationUpdate {
	u.Status = nil
	u.LastEventSummary = nil
	return u
}
