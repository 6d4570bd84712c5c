// Package entity derives the naming surface of a principal type and extracts
// its credentials from a request.
//
// Every name is a pure function of the principal type name and the header
// name overrides passed in, so callers always see values that match the
// configuration they resolved against.
package entity

import (
	"errors"
	"fmt"
)

// DefaultIdentifierField is the lookup field used when no override is set.
const DefaultIdentifierField = "email"

// ErrUnsupportedName indicates a principal type name that is not an ASCII identifier.
var ErrUnsupportedName = errors.New("entity: unsupported principal type name")

// Entity describes the parameter and header names of one principal type.
type Entity struct {
	Name                 string `json:"name"`
	NameUnderscore       string `json:"name_underscore"`
	TokenParamName       string `json:"token_param_name"`
	IdentifierFieldName  string `json:"identifier_field_name"`
	IdentifierParamName  string `json:"identifier_param_name"`
	TokenHeaderName      string `json:"token_header_name"`
	IdentifierHeaderName string `json:"identifier_header_name"`
}

// Resolve derives the Entity for a principal type name.
//
// headerNames is expected to be normalized (see HeaderNames.Normalize); the
// settings registry stores it that way.
func Resolve(principalType string, headerNames HeaderNames) (Entity, error) {
	if !ValidName(principalType) {
		return Entity{}, fmt.Errorf("%w: %q", ErrUnsupportedName, principalType)
	}

	name := Camelize(principalType)
	underscore := Underscore(principalType)
	overrides := headerNames[underscore]

	field := overrides.IdentifierField
	if field == "" {
		field = DefaultIdentifierField
	}

	ent := Entity{
		Name:                 name,
		NameUnderscore:       underscore,
		TokenParamName:       underscore + "_token",
		IdentifierFieldName:  field,
		IdentifierParamName:  underscore + "_" + field,
		TokenHeaderName:      "X-" + name + "-Token",
		IdentifierHeaderName: "X-" + name + "-" + Camelize(field),
	}
	if overrides.AuthenticationToken != "" {
		ent.TokenHeaderName = overrides.AuthenticationToken
	}
	if overrides.Identifier != "" {
		ent.IdentifierHeaderName = overrides.Identifier
	}
	return ent, nil
}

// MustResolve is like Resolve but panics on an unsupported name.
func MustResolve(principalType string, headerNames HeaderNames) Entity {
	ent, err := Resolve(principalType, headerNames)
	if err != nil {
		panic(err)
	}
	return ent
}

// MethodName is the fallback-capable authentication method for the entity.
func (e Entity) MethodName() string {
	return "authenticate_" + e.NameUnderscore + "_from_token"
}

// BangMethodName is the mandatory authentication method for the entity.
func (e Entity) BangMethodName() string {
	return e.MethodName() + "!"
}
