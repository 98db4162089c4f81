package identity

import "strings"

// Code classifies provider failures into the fixed set the client surfaces.
type Code string

const (
	CodeInvalidEmail        Code = "invalid-email"
	CodeWrongPassword       Code = "wrong-password"
	CodeUserNotFound        Code = "user-not-found"
	CodeUserDisabled        Code = "user-disabled"
	CodeWeakPassword        Code = "weak-password"
	CodeEmailInUse          Code = "email-in-use"
	CodeRequiresRecentLogin Code = "requires-recent-login"
	CodeGeneric             Code = "generic"
)

var messages = map[Code]string{
	CodeInvalidEmail:        "invalid email address",
	CodeWrongPassword:       "wrong password",
	CodeUserNotFound:        "no account with this email",
	CodeUserDisabled:        "this account has been disabled",
	CodeWeakPassword:        "password too weak (minimum 6 characters)",
	CodeEmailInUse:          "this email is already in use",
	CodeRequiresRecentLogin: "please sign in again to perform this action",
	CodeGeneric:             "something went wrong, please try again",
}

// Error is a coded failure from the identity provider. Raw preserves the
// provider's own code for logs; Code drives the message shown to the user.
type Error struct {
	Code Code
	Raw  string
}

func (e *Error) Error() string {
	if e.Raw != "" {
		return "identity: " + e.Raw
	}
	return "identity: " + string(e.Code)
}

// Message returns the fixed user-facing reason for the error's code.
func (e *Error) Message() string {
	if msg, ok := messages[e.Code]; ok {
		return msg
	}
	return messages[CodeGeneric]
}

// codeFromProvider maps the provider's error vocabulary onto Code. Unknown
// codes collapse to the generic catch-all. The provider occasionally appends
// detail after the code ("WEAK_PASSWORD : ..."), hence the prefix matching.
func codeFromProvider(raw string) Code {
	code := raw
	if i := strings.IndexAny(raw, " :"); i >= 0 {
		code = raw[:i]
	}
	switch code {
	case "INVALID_EMAIL":
		return CodeInvalidEmail
	case "INVALID_PASSWORD", "INVALID_LOGIN_CREDENTIALS":
		return CodeWrongPassword
	case "EMAIL_NOT_FOUND":
		return CodeUserNotFound
	case "USER_DISABLED":
		return CodeUserDisabled
	case "WEAK_PASSWORD":
		return CodeWeakPassword
	case "EMAIL_EXISTS":
		return CodeEmailInUse
	case "CREDENTIAL_TOO_OLD_LOGIN_AGAIN", "TOKEN_EXPIRED", "INVALID_ID_TOKEN":
		return CodeRequiresRecentLogin
	default:
		return CodeGeneric
	}
}
