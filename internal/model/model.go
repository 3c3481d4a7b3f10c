package model

import "time"

// Well-known tables and the credential partition.
const (
	AuthTable           = "AuthTable"
	DataTable           = "DataTable"
	CredentialPartition = "Userid"
)

// Credential record properties in AuthTable.
const (
	PropPassword      = "Password"
	PropDataPartition = "DataPartition"
	PropDataRow       = "DataRow"
)

// Social record properties in DataTable.
const (
	PropFriends = "Friends"
	PropStatus  = "Status"
	PropUpdates = "Updates"
)

// Credential is a user's row in AuthTable (partition "Userid", row = user id).
type Credential struct {
	UserID        string `json:"-" dynamodbav:"-"`
	Password      string `json:"Password" dynamodbav:"Password"`
	DataPartition string `json:"DataPartition" dynamodbav:"DataPartition"`
	DataRow       string `json:"DataRow" dynamodbav:"DataRow"`
}

// Grant is what the auth service hands back on a successful GetUpdateData:
// a capability token plus the location of the caller's social record.
type Grant struct {
	Token         string `json:"token"`
	DataPartition string `json:"DataPartition"`
	DataRow       string `json:"DataRow"`
}

// Session is the cached sign-on state of one user.
type Session struct {
	UserID        string    `json:"user_id"`
	Token         string    `json:"-"`
	DataPartition string    `json:"data_partition"`
	DataRow       string    `json:"data_row"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Expired reports whether the session's token has outlived its TTL.
func (s Session) Expired(now time.Time) bool {
	return !now.Before(s.ExpiresAt)
}
