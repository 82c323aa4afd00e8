package envelope

import (
	"mobile-session/internal/domain"
)

// Tokens is the backend session material carried by a login-style reply
type Tokens struct {
	AccessToken  string
	RefreshToken string
	// User is the raw user object when the reply carried one
	User *Tree
}

// IsSuccess reports whether the reply flags success via "success" or "status"
func IsSuccess(t *Tree) bool {
	if v, ok := t.Bool("success"); ok && v {
		return true
	}
	if v, ok := t.Bool("status"); ok && v {
		return true
	}
	return false
}

// ExtractTokens reads a generic success envelope.
// Tokens come from "data" when it is an object, else from the root.
func ExtractTokens(body string) (Tokens, bool) {
	tree := Parse(body)
	if !IsSuccess(tree) {
		return Tokens{}, false
	}

	src, ok := tree.Object("data")
	if !ok {
		src = tree
	}

	access, ok := src.First([]string{"accessToken"}, []string{"access_token"})
	if !ok {
		return Tokens{}, false
	}

	out := Tokens{AccessToken: access}
	out.RefreshToken, _ = src.First([]string{"refreshToken"}, []string{"refresh_token"})
	if user, ok := src.Object("user"); ok {
		out.User = user
	}
	return out, true
}

var (
	tokenLevels  = [][]string{nil, {"data"}, {"data", "data"}}
	accessFields = []string{"token", "jwt", "accessToken", "access_token"}
	refreshField = []string{"refreshToken", "refresh_token"}
)

// EmailTokenPaths lists where an email login/signup reply may hide the access token, in priority order
func EmailTokenPaths() [][]string {
	paths := make([][]string, 0, len(tokenLevels)*len(accessFields))
	for _, level := range tokenLevels {
		for _, field := range accessFields {
			p := append(append([]string{}, level...), field)
			paths = append(paths, p)
		}
	}
	return paths
}

// ExtractEmailToken returns the first non-blank access token in EmailTokenPaths order
func ExtractEmailToken(body string) (string, bool) {
	return Parse(body).First(EmailTokenPaths()...)
}

// ExtractEmailRefreshToken searches the same three levels for a refresh token
func ExtractEmailRefreshToken(body string) (string, bool) {
	tree := Parse(body)
	for _, level := range tokenLevels {
		for _, field := range refreshField {
			if v, ok := tree.String(append(append([]string{}, level...), field)...); ok {
				return v, true
			}
		}
	}
	return "", false
}

// ExtractUser finds the user object (data, user, data.user, else root) and maps its fields.
// A user needs at least an id or an email.
func ExtractUser(body string) (*domain.User, bool) {
	return UserFromTree(Parse(body))
}

// UserFromTree is ExtractUser over an already parsed reply
func UserFromTree(tree *Tree) (*domain.User, bool) {
	if !tree.IsObject() {
		return nil, false
	}

	src := tree
	for _, p := range [][]string{{"data"}, {"user"}, {"data", "user"}} {
		if obj, ok := tree.Object(p...); ok && looksLikeUser(obj) {
			src = obj
			break
		}
	}

	u := mapUser(src)
	if u.ID == "" && u.Email == "" {
		return nil, false
	}
	return u, true
}

// looksLikeUser rejects wrappers such as {"data":{"user":{...}}} when probing "data"
func looksLikeUser(t *Tree) bool {
	_, ok := t.First([]string{"_id"}, []string{"id"}, []string{"email"})
	return ok
}

func mapUser(t *Tree) *domain.User {
	u := &domain.User{}
	u.ID, _ = t.First([]string{"_id"}, []string{"id"})
	u.Email, _ = t.String("email")
	u.FirstName, _ = t.First([]string{"firstName"}, []string{"first_name"})
	u.LastName, _ = t.First([]string{"lastName"}, []string{"last_name"})
	u.ProfileImage, _ = t.First([]string{"profileImage"}, []string{"profile_image"}, []string{"avatar"})
	u.Phone, _ = t.First([]string{"phone"}, []string{"phoneNumber"}, []string{"phone_number"})
	return u
}

// ErrorMessage extracts the server-provided error text
func ErrorMessage(body string) (string, bool) {
	tree := Parse(body)
	if msg, ok := tree.First([]string{"message"}, []string{"error"}); ok {
		return msg, true
	}
	if node, ok := tree.Lookup("errors"); ok {
		if list, isList := node.([]interface{}); isList && len(list) > 0 {
			switch first := list[0].(type) {
			case string:
				if first != "" {
					return first, true
				}
			case map[string]interface{}:
				item := &Tree{root: first}
				if msg, ok := item.First([]string{"message"}, []string{"msg"}); ok {
					return msg, true
				}
			}
		}
	}
	return tree.First([]string{"data", "message"}, []string{"data", "error"})
}
