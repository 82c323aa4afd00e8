package envelope

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_NeverPanics(t *testing.T) {
	inputs := []string{"", "not json", "[1,2]", "null", `"str"`, `{"data":[]}`, `{"data":null}`}
	for _, in := range inputs {
		t.Run(in, func(t *testing.T) {
			tree := Parse(in)
			_, ok := tree.String("data", "token")
			assert.False(t, ok)
			_, ok = tree.Object("data")
			assert.False(t, ok)
			assert.False(t, IsSuccess(tree))
		})
	}
}

func TestTree_String(t *testing.T) {
	tree := Parse(`{"a":"x","n":42,"blank":"  ","b":true,"o":{"c":"y"}}`)

	v, ok := tree.String("a")
	assert.True(t, ok)
	assert.Equal(t, "x", v)

	v, ok = tree.String("n")
	assert.True(t, ok)
	assert.Equal(t, "42", v)

	_, ok = tree.String("blank")
	assert.False(t, ok)
	_, ok = tree.String("b")
	assert.False(t, ok)
	_, ok = tree.String("o")
	assert.False(t, ok)

	v, ok = tree.String("o", "c")
	assert.True(t, ok)
	assert.Equal(t, "y", v)
}

func TestIsSuccess(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected bool
	}{
		{"success true", `{"success":true}`, true},
		{"status true", `{"status":true}`, true},
		{"success false status true", `{"success":false,"status":true}`, true},
		{"string status", `{"status":"ok"}`, false},
		{"missing", `{}`, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, IsSuccess(Parse(tt.body)))
		})
	}
}

func TestExtractTokens(t *testing.T) {
	tests := []struct {
		name    string
		body    string
		ok      bool
		access  string
		refresh string
		user    bool
	}{
		{
			name:    "data object camelCase",
			body:    `{"success":true,"data":{"accessToken":"a.b.c","refreshToken":"r","user":{"_id":"u1"}}}`,
			ok:      true,
			access:  "a.b.c",
			refresh: "r",
			user:    true,
		},
		{
			name:   "root snake_case",
			body:   `{"status":true,"access_token":"a.b.c"}`,
			ok:     true,
			access: "a.b.c",
		},
		{
			name: "not successful",
			body: `{"success":false,"data":{"accessToken":"a.b.c"}}`,
			ok:   false,
		},
		{
			name: "no access token",
			body: `{"success":true,"data":{"refreshToken":"r"}}`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tokens, ok := ExtractTokens(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.access, tokens.AccessToken)
			assert.Equal(t, tt.refresh, tokens.RefreshToken)
			assert.Equal(t, tt.user, tokens.User != nil)
		})
	}
}

func TestExtractEmailToken_PriorityOrder(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
		ok       bool
	}{
		{"root beats data", `{"token":"a.b.c","data":{"token":"x.y.z"}}`, "a.b.c", true},
		{"token beats jwt", `{"jwt":"j.j.j","token":"t.t.t"}`, "t.t.t", true},
		{"root access_token beats data token", `{"access_token":"r.r.r","data":{"token":"d.d.d"}}`, "r.r.r", true},
		{"blank skipped", `{"token":"  ","data":{"jwt":"d.d.d"}}`, "d.d.d", true},
		{"nested data", `{"data":{"data":{"accessToken":"n.n.n"}}}`, "n.n.n", true},
		{"data level before nested", `{"data":{"access_token":"d.d.d","data":{"token":"n.n.n"}}}`, "d.d.d", true},
		{"nothing", `{"data":{"user":{}}}`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token, ok := ExtractEmailToken(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, token)
		})
	}
}

func TestEmailTokenPaths(t *testing.T) {
	paths := EmailTokenPaths()
	require.Len(t, paths, 12)
	assert.Equal(t, []string{"token"}, paths[0])
	assert.Equal(t, []string{"access_token"}, paths[3])
	assert.Equal(t, []string{"data", "token"}, paths[4])
	assert.Equal(t, []string{"data", "data", "access_token"}, paths[11])
}

func TestExtractEmailRefreshToken(t *testing.T) {
	v, ok := ExtractEmailRefreshToken(`{"data":{"refresh_token":"r2"}}`)
	assert.True(t, ok)
	assert.Equal(t, "r2", v)

	_, ok = ExtractEmailRefreshToken(`{"token":"a.b.c"}`)
	assert.False(t, ok)
}

func TestExtractUser(t *testing.T) {
	tests := []struct {
		name      string
		body      string
		ok        bool
		id        string
		email     string
		firstName string
		image     string
		phone     string
	}{
		{
			name:      "data object",
			body:      `{"success":true,"data":{"_id":"u1","email":"a@b.c","firstName":"Ann"}}`,
			ok:        true,
			id:        "u1",
			email:     "a@b.c",
			firstName: "Ann",
		},
		{
			name:      "user object with fallbacks",
			body:      `{"user":{"id":"u2","first_name":"Bo","avatar":"http://img","phone_number":"555"}}`,
			ok:        true,
			id:        "u2",
			firstName: "Bo",
			image:     "http://img",
			phone:     "555",
		},
		{
			name:  "data.user",
			body:  `{"data":{"user":{"email":"c@d.e"}}}`,
			ok:    true,
			email: "c@d.e",
		},
		{
			name:  "root",
			body:  `{"_id":"u3","profile_image":"p","phoneNumber":"1"}`,
			ok:    true,
			id:    "u3",
			image: "p",
			phone: "1",
		},
		{
			name: "numeric id",
			body: `{"data":{"id":7}}`,
			ok:   true,
			id:   "7",
		},
		{
			name: "no id or email",
			body: `{"data":{"firstName":"Ghost"}}`,
			ok:   false,
		},
		{
			name: "malformed",
			body: `<html>`,
			ok:   false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			u, ok := ExtractUser(tt.body)
			require.Equal(t, tt.ok, ok)
			if !ok {
				assert.Nil(t, u)
				return
			}
			assert.Equal(t, tt.id, u.ID)
			assert.Equal(t, tt.email, u.Email)
			assert.Equal(t, tt.firstName, u.FirstName)
			assert.Equal(t, tt.image, u.ProfileImage)
			assert.Equal(t, tt.phone, u.Phone)
		})
	}
}

func TestErrorMessage(t *testing.T) {
	tests := []struct {
		name     string
		body     string
		expected string
		ok       bool
	}{
		{"message", `{"message":"Invalid credentials"}`, "Invalid credentials", true},
		{"error", `{"error":"Nope"}`, "Nope", true},
		{"errors string", `{"errors":["first","second"]}`, "first", true},
		{"errors object", `{"errors":[{"msg":"Email taken"}]}`, "Email taken", true},
		{"data message", `{"data":{"message":"inner"}}`, "inner", true},
		{"data error", `{"data":{"error":"inner err"}}`, "inner err", true},
		{"none", `{"success":false}`, "", false},
		{"not json", `oops`, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			msg, ok := ErrorMessage(tt.body)
			assert.Equal(t, tt.ok, ok)
			assert.Equal(t, tt.expected, msg)
		})
	}
}
