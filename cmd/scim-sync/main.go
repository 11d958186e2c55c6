package main

import (
	"context"
	"encoding/json"
	"os"
	"sort"

	"github.com/alecthomas/kingpin/v2"
	"github.com/databricks/databricks-sdk-go/service/iam"
	"github.com/sirupsen/logrus"

	"github.com/haschdl/azure-dbr-scim-sync/graph"
)

// accountObjects is the document handed to the Databricks upsert stage.
type accountObjects struct {
	Users             []iam.User             `json:"users"`
	ServicePrincipals []iam.ServicePrincipal `json:"service_principals"`
	Groups            []iam.Group            `json:"groups"`
}

func envOr(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

func main() {
	app := kingpin.New("scim-sync", "Download Azure AD groups, users and service principals and emit their Databricks account representation.")
	tenantID := app.Flag("tenant-id", "Azure AD tenant id.").
		Default(envOr("GRAPH_ARM_TENANT_ID", "ARM_TENANT_ID")).String()
	clientID := app.Flag("client-id", "Client id of the service principal used to query Microsoft Graph.").
		Default(envOr("GRAPH_ARM_CLIENT_ID", "ARM_CLIENT_ID")).String()
	clientSecret := app.Flag("client-secret", "Client secret of the service principal.").
		Default(envOr("GRAPH_ARM_CLIENT_SECRET", "ARM_CLIENT_SECRET")).String()
	output := app.Flag("output", "File to write the converted objects to, \"-\" for stdout.").
		Short('o').Default("-").String()
	debug := app.Flag("debug", "Enable debug logging.").Bool()
	groups := app.Arg("groups", "Display names of the groups to synchronize.").Required().Strings()
	kingpin.MustParse(app.Parse(os.Args[1:]))

	if *debug {
		logrus.SetLevel(logrus.DebugLevel)
	}
	if *tenantID == "" {
		app.Fatalf("unknown tenant id, set GRAPH_ARM_TENANT_ID or ARM_TENANT_ID or pass --tenant-id")
	}
	if *clientID == "" {
		app.Fatalf("unknown client id, set GRAPH_ARM_CLIENT_ID or ARM_CLIENT_ID or pass --client-id")
	}
	if *clientSecret == "" {
		app.Fatalf("unknown client secret, set GRAPH_ARM_CLIENT_SECRET or ARM_CLIENT_SECRET or pass --client-secret")
	}

	ctx := context.Background()
	client, err := graph.NewClient(ctx, graph.Config{
		TenantID:     *tenantID,
		ClientID:     *clientID,
		ClientSecret: *clientSecret,
	})
	if err != nil {
		logrus.WithError(err).Fatal("failed to create graph client")
	}

	sync, err := graph.NewBuilder(client).Build(ctx, *groups)
	if err != nil {
		logrus.WithError(err).Fatal("directory download failed")
	}

	data, err := json.MarshalIndent(convert(sync), "", "  ")
	if err != nil {
		logrus.WithError(err).Fatal("failed to encode account objects")
	}
	data = append(data, '\n')

	if *output == "-" {
		_, err = os.Stdout.Write(data)
	} else {
		err = os.WriteFile(*output, data, 0o644)
	}
	if err != nil {
		logrus.WithError(err).Fatal("failed to write account objects")
	}
}

func convert(sync *graph.SyncGraph) accountObjects {
	objects := accountObjects{
		Users:             make([]iam.User, 0, len(sync.Users)),
		ServicePrincipals: make([]iam.ServicePrincipal, 0, len(sync.ServicePrincipals)),
		Groups:            make([]iam.Group, 0, len(sync.Groups)),
	}
	for _, u := range sync.Users {
		objects.Users = append(objects.Users, u.ToAccountUser())
	}
	for _, sp := range sync.ServicePrincipals {
		objects.ServicePrincipals = append(objects.ServicePrincipals, sp.ToAccountServicePrincipal())
	}
	for _, g := range sync.Groups {
		objects.Groups = append(objects.Groups, g.ToAccountGroup())
	}
	// stable output regardless of map iteration order
	sort.Slice(objects.Users, func(i, j int) bool { return objects.Users[i].ExternalId < objects.Users[j].ExternalId })
	sort.Slice(objects.ServicePrincipals, func(i, j int) bool {
		return objects.ServicePrincipals[i].ExternalId < objects.ServicePrincipals[j].ExternalId
	})
	sort.Slice(objects.Groups, func(i, j int) bool { return objects.Groups[i].ExternalId < objects.Groups[j].ExternalId })
	return objects
}
