package graph

import (
	"testing"

	"github.com/databricks/databricks-sdk-go/service/iam"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseUser(t *testing.T) {
	u, err := parseUser(Object{
		"id":             "u-1",
		"displayName":    "Alice Alison",
		"mail":           "alice@example.com",
		"accountEnabled": false,
	})
	require.NoError(t, err)
	require.Equal(t, "u-1", u.ID)
	require.Equal(t, "Alice Alison", u.DisplayName)
	require.Equal(t, "alice@example.com", u.Mail)
	require.False(t, u.Active)
}

func TestParseUserMailFallback(t *testing.T) {
	u, err := parseUser(Object{
		"id":           "u-2",
		"displayName":  "Bob Bobert",
		"mailNickname": "bob@example.com",
	})
	require.NoError(t, err)
	require.Equal(t, "bob@example.com", u.Mail)
}

func TestParseUserDefaultActive(t *testing.T) {
	u, err := parseUser(Object{
		"id":          "u-3",
		"displayName": "Carol C",
		"mail":        "carol@example.com",
	})
	require.NoError(t, err)
	require.True(t, u.Active)
}

func TestParseUserMissingFields(t *testing.T) {
	tests := []struct {
		name   string
		record Object
		field  string
	}{
		{
			name:   "no mail and no alias",
			record: Object{"id": "u-4", "displayName": "Dave"},
			field:  "mail",
		},
		{
			name:   "no id",
			record: Object{"displayName": "Dave", "mail": "dave@example.com"},
			field:  "id",
		},
		{
			name:   "no display name",
			record: Object{"id": "u-4", "mail": "dave@example.com"},
			field:  "displayName",
		},
	}
	for _, test := range tests {
		t.Run(test.name, func(t *testing.T) {
			_, err := parseUser(test.record)
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			require.Equal(t, "user", verr.Kind)
			require.Equal(t, test.field, verr.Field)
		})
	}
}

func TestParseServicePrincipal(t *testing.T) {
	sp, err := parseServicePrincipal(Object{
		"id":          "sp-1",
		"displayName": "terraform",
		"appId":       "app-1",
	})
	require.NoError(t, err)
	require.Equal(t, "app-1", sp.ApplicationID)
	require.True(t, sp.Active)

	_, err = parseServicePrincipal(Object{
		"id":          "sp-2",
		"displayName": "no app id",
	})
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	require.Equal(t, "appId", verr.Field)
}

func TestParseGroup(t *testing.T) {
	g, err := parseGroup(Object{
		"id":          "g-1",
		"displayName": "engineering",
	})
	require.NoError(t, err)
	require.NotNil(t, g.Members)
	require.Empty(t, g.Members)
}

func TestToAccountUser(t *testing.T) {
	u := &User{
		Base:   Base{ID: "u-1", DisplayName: "Alice Alison"},
		Mail:   "alice@example.com",
		Active: true,
	}
	require.Equal(t, iam.User{
		UserName:    "alice@example.com",
		DisplayName: "Alice Alison",
		Active:      true,
		ExternalId:  "u-1",
	}, u.ToAccountUser())
}

func TestToAccountServicePrincipal(t *testing.T) {
	sp := &ServicePrincipal{
		Base:          Base{ID: "sp-1", DisplayName: "terraform"},
		ApplicationID: "app-1",
	}
	require.Equal(t, iam.ServicePrincipal{
		ApplicationId: "app-1",
		DisplayName:   "terraform",
		ExternalId:    "sp-1",
	}, sp.ToAccountServicePrincipal())
}

func TestToAccountGroup(t *testing.T) {
	g := &Group{
		Base: Base{ID: "g-1", DisplayName: "engineering"},
		Members: map[string]Identity{
			"u-1":  &User{Base: Base{ID: "u-1", DisplayName: "Alice Alison"}},
			"sp-1": &ServicePrincipal{Base: Base{ID: "sp-1", DisplayName: "terraform"}},
		},
	}
	out := g.ToAccountGroup()
	require.Equal(t, "engineering", out.DisplayName)
	require.Equal(t, "g-1", out.ExternalId)
	assert.ElementsMatch(t, []iam.ComplexValue{
		{Display: "Alice Alison", Value: "u-1"},
		{Display: "terraform", Value: "sp-1"},
	}, out.Members)
}
