package models

// Actor is the authenticated caller of an operation.
type Actor struct {
	UserID string
	Email  string
	Admin  bool
}

// CanAccess reports whether the actor may act on a resource owned by ownerID.
func (a Actor) CanAccess(ownerID string) bool {
	return a.Admin || (a.UserID != "" && a.UserID == ownerID)
}
