package graph

import (
	"context"

	"github.com/gravitational/trace"
	"github.com/sirupsen/logrus"
)

var log = logrus.WithField("component", "sync.graph")

// DirectorySource is the transport surface the builder consumes.
type DirectorySource interface {
	GetGroupByName(ctx context.Context, name string) (Object, error)
	GetGroupMembers(ctx context.Context, groupID string) ([]Object, error)
}

// SyncError pairs a raw member record with the validation failure it
// produced.
type SyncError struct {
	Record Object
	Err    error
}

// SyncGraph is the deduplicated result of one traversal run. Every key
// equals the ID of its mapped value, and every object in a group's
// Members map is present in one of the three entity maps.
type SyncGraph struct {
	Users             map[string]*User
	ServicePrincipals map[string]*ServicePrincipal
	Groups            map[string]*Group
	Errors            []SyncError
}

func newSyncGraph() *SyncGraph {
	return &SyncGraph{
		Users:             make(map[string]*User),
		ServicePrincipals: make(map[string]*ServicePrincipal),
		Groups:            make(map[string]*Group),
	}
}

// Builder walks the configured groups and accumulates a SyncGraph. The
// per-kind maps double as run-scoped dedup caches: an object appearing
// in several groups is validated once and the instance shared. A
// Builder covers a single run; there is no state between runs.
type Builder struct {
	source DirectorySource
	graph  *SyncGraph
	kinds  map[string]func(Object) (Identity, error)
}

func NewBuilder(source DirectorySource) *Builder {
	b := &Builder{
		source: source,
		graph:  newSyncGraph(),
	}
	// Dispatch on the @odata.type discriminant. Supporting a new member
	// kind is one entry pairing a parser with its cache.
	b.kinds = map[string]func(Object) (Identity, error){
		"#microsoft.graph.user": func(o Object) (Identity, error) {
			return asIdentity(register(b.graph.Users, o, parseUser))
		},
		"#microsoft.graph.servicePrincipal": func(o Object) (Identity, error) {
			return asIdentity(register(b.graph.ServicePrincipals, o, parseServicePrincipal))
		},
		"#microsoft.graph.group": func(o Object) (Identity, error) {
			return asIdentity(register(b.graph.Groups, o, parseGroup))
		},
	}
	return b
}

// register validates a raw record at most once per identifier. A cache
// hit returns the already validated object without touching the record
// again; a failure is propagated without negative caching, so a later
// record carrying the same identifier is attempted afresh.
func register[T Identity](cache map[string]T, o Object, parse func(Object) (T, error)) (T, error) {
	if id, ok := stringField(o, "id"); ok {
		if cached, ok := cache[id]; ok {
			return cached, nil
		}
	}
	obj, err := parse(o)
	if err != nil {
		var zero T
		return zero, err
	}
	cache[obj.ObjectID()] = obj
	return obj, nil
}

func asIdentity[T Identity](obj T, err error) (Identity, error) {
	if err != nil {
		return nil, err
	}
	return obj, nil
}

// pruneAbsent drops fields explicitly set to null, so that alias
// fallback is not short-circuited by a null primary field.
func pruneAbsent(o Object) Object {
	pruned := make(Object, len(o))
	for k, v := range o {
		if v != nil {
			pruned[k] = v
		}
	}
	return pruned
}

func (b *Builder) recordError(o Object, err error) {
	log.WithError(err).WithField("record", o).Error("invalid group member")
	b.graph.Errors = append(b.graph.Errors, SyncError{Record: o, Err: err})
}

// Build traverses the named groups in the given order and returns the
// resulting SyncGraph. Groups that do not resolve to exactly one match
// are skipped with a warning. Member validation failures are recorded
// on the graph and never abort the run; transport failures do.
func (b *Builder) Build(ctx context.Context, groupNames []string) (*SyncGraph, error) {
	for idx, name := range groupNames {
		log.Infof("downloading members of group %q (%d/%d)", name, idx+1, len(groupNames))

		info, err := b.source.GetGroupByName(ctx, name)
		if err != nil {
			if trace.IsNotFound(err) {
				log.Warnf("group not found, skipping: %s", name)
				continue
			}
			return nil, trace.Wrap(err)
		}

		groupID, _ := stringField(info, "id")
		members, err := b.source.GetGroupMembers(ctx, groupID)
		if err != nil {
			return nil, trace.Wrap(err)
		}

		group, err := register(b.graph.Groups, info, parseGroup)
		if err != nil {
			b.recordError(info, err)
			continue
		}

		for _, m := range members {
			m = pruneAbsent(m)

			kind, _ := stringField(m, "@odata.type")
			registerKind, ok := b.kinds[kind]
			if !ok {
				b.recordError(m, trace.BadParameter("unsupported member type %q", kind))
				continue
			}
			member, err := registerKind(m)
			if err != nil {
				b.recordError(m, err)
				continue
			}
			group.Members[member.ObjectID()] = member
		}
	}

	summary := log.WithFields(logrus.Fields{
		"errors":             len(b.graph.Errors),
		"groups":             len(b.graph.Groups),
		"users":              len(b.graph.Users),
		"service_principals": len(b.graph.ServicePrincipals),
	})
	if len(b.graph.Errors) > 0 {
		summary.Error("directory download finished with errors")
	} else {
		summary.Info("directory download finished")
	}
	return b.graph, nil
}
