package graph

import (
	"fmt"

	"github.com/databricks/databricks-sdk-go/service/iam"
)

// Object is a raw directory record as decoded from a Graph API response.
type Object = map[string]any

// ValidationError reports a record that could not be turned into a typed
// directory object.
type ValidationError struct {
	Kind  string
	Field string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s record: missing required field %q", e.Kind, e.Field)
}

// stringField resolves a logical attribute against an ordered list of
// candidate source field names, first present wins.
func stringField(o Object, names ...string) (string, bool) {
	for _, n := range names {
		if s, ok := o[n].(string); ok && s != "" {
			return s, true
		}
	}
	return "", false
}

// boolField is like stringField for booleans, with a default for record
// shapes that omit the field entirely.
func boolField(o Object, def bool, names ...string) bool {
	for _, n := range names {
		if b, ok := o[n].(bool); ok {
			return b
		}
	}
	return def
}

// Identity is the capability shared by every directory object variant:
// a stable external identifier and a human readable display name.
type Identity interface {
	ObjectID() string
	ObjectDisplayName() string
}

// Base carries the attributes common to all directory objects.
type Base struct {
	ID          string
	DisplayName string
}

func (b Base) ObjectID() string          { return b.ID }
func (b Base) ObjectDisplayName() string { return b.DisplayName }

func parseBase(kind string, o Object) (Base, error) {
	id, ok := stringField(o, "id")
	if !ok {
		return Base{}, &ValidationError{Kind: kind, Field: "id"}
	}
	name, ok := stringField(o, "displayName")
	if !ok {
		return Base{}, &ValidationError{Kind: kind, Field: "displayName"}
	}
	return Base{ID: id, DisplayName: name}, nil
}

// User is a directory user. Mail falls back to the mailNickname alias
// when the primary mail field is absent.
type User struct {
	Base
	Mail   string
	Active bool
}

func parseUser(o Object) (*User, error) {
	base, err := parseBase("user", o)
	if err != nil {
		return nil, err
	}
	mail, ok := stringField(o, "mail", "mailNickname")
	if !ok {
		return nil, &ValidationError{Kind: "user", Field: "mail"}
	}
	return &User{
		Base:   base,
		Mail:   mail,
		Active: boolField(o, true, "accountEnabled"),
	}, nil
}

// ToAccountUser converts the user to its Databricks account representation.
func (u *User) ToAccountUser() iam.User {
	return iam.User{
		UserName:    u.Mail,
		DisplayName: u.DisplayName,
		Active:      u.Active,
		ExternalId:  u.ID,
	}
}

type ServicePrincipal struct {
	Base
	ApplicationID string
	Active        bool
}

func parseServicePrincipal(o Object) (*ServicePrincipal, error) {
	base, err := parseBase("servicePrincipal", o)
	if err != nil {
		return nil, err
	}
	appID, ok := stringField(o, "appId")
	if !ok {
		return nil, &ValidationError{Kind: "servicePrincipal", Field: "appId"}
	}
	return &ServicePrincipal{
		Base:          base,
		ApplicationID: appID,
		Active:        boolField(o, true, "accountEnabled"),
	}, nil
}

func (sp *ServicePrincipal) ToAccountServicePrincipal() iam.ServicePrincipal {
	return iam.ServicePrincipal{
		ApplicationId: sp.ApplicationID,
		DisplayName:   sp.DisplayName,
		Active:        sp.Active,
		ExternalId:    sp.ID,
	}
}

// Group is a directory group. Members holds the resolved direct members
// keyed by identifier; a group appearing as a member of another group is
// kept here as an entity but its own membership is never expanded.
type Group struct {
	Base
	Members map[string]Identity
}

func parseGroup(o Object) (*Group, error) {
	base, err := parseBase("group", o)
	if err != nil {
		return nil, err
	}
	return &Group{
		Base:    base,
		Members: make(map[string]Identity),
	}, nil
}

// ToAccountGroup converts the group and its already resolved members to
// the Databricks account representation.
func (g *Group) ToAccountGroup() iam.Group {
	members := make([]iam.ComplexValue, 0, len(g.Members))
	for _, m := range g.Members {
		members = append(members, iam.ComplexValue{
			Display: m.ObjectDisplayName(),
			Value:   m.ObjectID(),
		})
	}
	return iam.Group{
		DisplayName: g.DisplayName,
		ExternalId:  g.ID,
		Members:     members,
	}
}
