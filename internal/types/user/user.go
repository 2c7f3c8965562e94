package user

// Principal identifies who is calling. It is built by the auth middleware and
// passed explicitly to services instead of being read from ambient state.
type Principal struct {
	UserID string `json:"user_id"`
	Guest  bool   `json:"guest"`
	Locale string `json:"locale"`
}

func GuestPrincipal(locale string) Principal {
	return Principal{Guest: true, Locale: locale}
}

// Authenticated reports whether the principal can own favorites and likes.
func (p Principal) Authenticated() bool {
	return !p.Guest && p.UserID != ""
}
