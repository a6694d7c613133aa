package schema

// Session is the authenticated user of this device.
// Exactly one session exists per device at a time.
type Session struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	UserID       string `json:"user_id"`
	Email        string `json:"email"`
}

// Valid reports whether the session carries everything needed to call the
// backend.
func (s *Session) Valid() bool {
	return s != nil && s.AccessToken != "" && s.RefreshToken != "" && s.UserID != ""
}
