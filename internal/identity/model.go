package identity

// User is the signed-in account as reported by the identity backend. Callers
// receive copies; the backend owns the original.
type User struct {
	ID            string `json:"id"`
	DisplayName   string `json:"display_name,omitempty"`
	Email         string `json:"email,omitempty"`
	Phone         string `json:"phone,omitempty"`
	EmailVerified bool   `json:"email_verified"`
}

// Clone returns a copy of u, or nil.
func (u *User) Clone() *User {
	if u == nil {
		return nil
	}
	c := *u
	return &c
}

// Equal reports whether two users carry the same attributes. Two nils are
// equal.
func (u *User) Equal(other *User) bool {
	if u == nil || other == nil {
		return u == nil && other == nil
	}
	return *u == *other
}
