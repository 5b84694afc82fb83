package model

// Identity is the authenticated Battle.net account behind a session.
type Identity struct {
	BnetID   int64  `json:"bnet_id"`
	Username string `json:"username"`
}
