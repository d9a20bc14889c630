package model

// Identity scopes submissions and responses to either an authenticated user
// or an anonymous session. Exactly one of the two is set.
type Identity struct {
	UserID     int
	SessionKey string
}

func Authenticated(userID int) Identity {
	return Identity{UserID: userID}
}

func Anonymous(sessionKey string) Identity {
	return Identity{SessionKey: sessionKey}
}

func (id Identity) IsAuthenticated() bool {
	return id.UserID != 0
}
