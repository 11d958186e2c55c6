package azure_dbr_scim_sync

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"

	"github.com/GoogleCloudPlatform/functions-framework-go/functions"
	"github.com/cloudevents/sdk-go/v2/event"
	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"

	"github.com/haschdl/azure-dbr-scim-sync/graph"
)

func init() {
	// Register the sync with the Functions Framework, for manual runs
	// over HTTP and scheduled runs via Pub/Sub.
	functions.HTTP("GraphScimSyncHttp", graphScimSyncHTTP)
	functions.CloudEvent("GraphScimSyncPubSub", graphScimSyncPubSub)
}

const syncGroupsName = "SCIM_SYNC_GROUPS"

func envOr(names ...string) string {
	for _, n := range names {
		if v := os.Getenv(n); v != "" {
			return v
		}
	}
	return ""
}

// parseGroupList splits the configured group list on newlines and commas.
func parseGroupList(value string) (groups []string) {
	for _, line := range strings.Split(value, "\n") {
		for _, name := range strings.Split(line, ",") {
			if name = strings.TrimSpace(name); name != "" {
				groups = append(groups, name)
			}
		}
	}
	return
}

func runGraphSync(ctx context.Context) (*graph.SyncGraph, error) {
	groups := parseGroupList(os.Getenv(syncGroupsName))
	if len(groups) == 0 {
		return nil, trace.BadParameter("environment variable %q is not set", syncGroupsName)
	}

	client, err := graph.NewClient(ctx, graph.Config{
		TenantID:     envOr("GRAPH_ARM_TENANT_ID", "ARM_TENANT_ID"),
		ClientID:     envOr("GRAPH_ARM_CLIENT_ID", "ARM_CLIENT_ID"),
		ClientSecret: envOr("GRAPH_ARM_CLIENT_SECRET", "ARM_CLIENT_SECRET"),
	})
	if err != nil {
		return nil, trace.Wrap(err)
	}

	return graph.NewBuilder(client).Build(ctx, groups)
}

func printStatistics(w io.Writer, sync *graph.SyncGraph) {
	_, _ = fmt.Fprintf(w, "groups: %d\nusers: %d\nservice principals: %d\nerrors: %d\n",
		len(sync.Groups), len(sync.Users), len(sync.ServicePrincipals), len(sync.Errors))
	for _, e := range sync.Errors {
		_, _ = fmt.Fprintf(w, "\t%v: %v\n", e.Record, e.Err)
	}
}

func graphScimSyncHTTP(w http.ResponseWriter, r *http.Request) {
	sync, err := runGraphSync(r.Context())
	if err != nil {
		logrus.WithError(err).Error("graph sync failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	printStatistics(w, sync)
}

func graphScimSyncPubSub(ctx context.Context, _ event.Event) error {
	sync, err := runGraphSync(ctx)
	if err != nil {
		logrus.WithError(err).Error("graph sync failed")
		return err
	}
	printStatistics(os.Stdout, sync)
	return nil
}
