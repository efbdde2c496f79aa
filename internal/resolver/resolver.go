// Package resolver establishes the execution context for remote calls: AWS
// credentials and region for the query service, the Slack bot token for the
// messaging service, and the channel allowlist.  The context is built once at
// process start and is immutable afterwards.
package resolver

import (
	"context"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/rusq/osenv/v2"
	"github.com/rusq/slack"

	"github.com/lakebridge/lakebridge/internal/classify"
)

const (
	defDataCatalog   = "AwsDataCatalog"
	defWorkgroup     = "primary"
	defMaxRows       = 100
	defMaxMessages   = 100
	defQueryDeadline = 5 * time.Minute
)

// Config is the immutable configuration of the resolver.  Zero values mean
// "use the provider's default" where one exists; OutputLocation and
// SlackToken have no defaults and gate their respective tool families.
type Config struct {
	AWSProfile     string
	AWSRegion      string
	DataCatalog    string // Athena data catalog, e.g. AwsDataCatalog
	DefaultCatalog string // default database within the data catalog
	Workgroup      string
	OutputLocation string // s3:// URI for query results

	SlackToken string
	Allowlist  []string // channel names or IDs; empty = unrestricted

	MaxRows       int
	MaxMessages   int
	QueryDeadline time.Duration
}

// FromEnv collects the configuration from environment variables.  Secret
// files are expected to have been loaded by the caller (main does this via
// godotenv).
func FromEnv() Config {
	return Config{
		AWSProfile:     osenv.Value("AWS_PROFILE", ""),
		AWSRegion:      osenv.Value("AWS_REGION", ""),
		DataCatalog:    osenv.Value("ATHENA_DATA_CATALOG", defDataCatalog),
		DefaultCatalog: osenv.Value("ATHENA_DATABASE", ""),
		Workgroup:      osenv.Value("ATHENA_WORKGROUP", defWorkgroup),
		OutputLocation: osenv.Value("ATHENA_OUTPUT_LOCATION", ""),
		SlackToken:     osenv.Secret("SLACK_BOT_TOKEN", ""),
		Allowlist:      splitList(osenv.Value("SLACK_CHANNEL_ALLOWLIST", "")),
		MaxRows:        intEnv("LAKEBRIDGE_MAX_ROWS", defMaxRows),
		MaxMessages:    intEnv("SLACK_MAX_MESSAGES", defMaxMessages),
		QueryDeadline:  durEnv("LAKEBRIDGE_QUERY_DEADLINE", defQueryDeadline),
	}
}

// Resolver resolves logical resource references to concrete execution
// contexts and enforces the channel allowlist.  It is safe for concurrent
// use: all fields are set in New and never mutated.
type Resolver struct {
	cfg   Config
	allow map[string]struct{}
}

// New creates a Resolver from cfg.
func New(cfg Config) *Resolver {
	r := &Resolver{cfg: cfg}
	if len(cfg.Allowlist) > 0 {
		r.allow = make(map[string]struct{}, len(cfg.Allowlist))
		for _, it := range cfg.Allowlist {
			if it != "" {
				r.allow[it] = struct{}{}
			}
		}
	}
	return r
}

// Config returns a copy of the resolver configuration.
func (r *Resolver) Config() Config {
	return r.cfg
}

// CatalogContext is the resolved context for one query execution.
type CatalogContext struct {
	DataCatalog    string
	Catalog        string // database name
	Workgroup      string
	OutputLocation string
}

// CatalogName resolves the catalog (database) name, falling back to the
// configured default when name is empty.  Metadata lookups use this
// directly; query execution goes through ResolveCatalog.
func (r *Resolver) CatalogName(name string) (string, error) {
	if name == "" {
		name = r.cfg.DefaultCatalog
	}
	if name == "" {
		return "", classify.New(classify.KindConfiguration,
			"no catalog specified and no default catalog configured (set ATHENA_DATABASE)")
	}
	return name, nil
}

// ResolveCatalog resolves the catalog (database) and workgroup for a query.
// Empty arguments fall back to the configured defaults.  It fails with a
// Configuration error when no catalog can be determined or no result
// location is configured; no remote call is made in either case.
func (r *Resolver) ResolveCatalog(catalog, workgroup string) (CatalogContext, error) {
	catalog, err := r.CatalogName(catalog)
	if err != nil {
		return CatalogContext{}, err
	}
	if workgroup == "" {
		workgroup = r.cfg.Workgroup
	}
	if r.cfg.OutputLocation == "" {
		return CatalogContext{}, classify.New(classify.KindConfiguration,
			"no query result location configured (set ATHENA_OUTPUT_LOCATION)")
	}
	return CatalogContext{
		DataCatalog:    r.cfg.DataCatalog,
		Catalog:        catalog,
		Workgroup:      workgroup,
		OutputLocation: r.cfg.OutputLocation,
	}, nil
}

// CheckChannel verifies that the raw channel reference is permitted by the
// allowlist before any remote call is made.  Matching is case-sensitive and
// exact, against either a channel name or an ID; a leading "#" on the
// reference is ignored.
func (r *Resolver) CheckChannel(ref string) error {
	if r.allow == nil {
		return nil
	}
	if _, ok := r.allow[strings.TrimPrefix(ref, "#")]; ok {
		return nil
	}
	return classify.Errorf(classify.KindPermissionDenied,
		"channel %q is not in the allowed channels list", ref)
}

// AllowChannel reports whether a channel, identified by both its ID and
// name, is permitted by the allowlist.  Used to filter channel listings.
func (r *Resolver) AllowChannel(id, name string) bool {
	if r.allow == nil {
		return true
	}
	if _, ok := r.allow[id]; ok {
		return true
	}
	_, ok := r.allow[name]
	return ok
}

// Restricted reports whether an allowlist is configured.
func (r *Resolver) Restricted() bool {
	return r.allow != nil
}

// AWSConfig loads the AWS shared configuration for the configured profile
// and region.
func (r *Resolver) AWSConfig(ctx context.Context) (aws.Config, error) {
	var opts []func(*awsconfig.LoadOptions) error
	if r.cfg.AWSProfile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(r.cfg.AWSProfile))
	}
	if r.cfg.AWSRegion != "" {
		opts = append(opts, awsconfig.WithRegion(r.cfg.AWSRegion))
	}
	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, classify.Wrap(classify.KindConfiguration,
			"unable to load AWS configuration", err)
	}
	return cfg, nil
}

// SlackClient creates a Slack client with the configured bot token.
func (r *Resolver) SlackClient() (*slack.Client, error) {
	if r.cfg.SlackToken == "" {
		return nil, classify.New(classify.KindConfiguration,
			"no Slack bot token configured (set SLACK_BOT_TOKEN)")
	}
	return slack.New(r.cfg.SlackToken), nil
}

// splitList parses a comma-separated list, trimming whitespace and dropping
// empty items.
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	for _, it := range strings.Split(s, ",") {
		if it = strings.TrimSpace(it); it != "" {
			out = append(out, it)
		}
	}
	return out
}

func intEnv(key string, def int) int {
	s := osenv.Value(key, "")
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil || n <= 0 {
		return def
	}
	return n
}

func durEnv(key string, def time.Duration) time.Duration {
	s := osenv.Value(key, "")
	if s == "" {
		return def
	}
	d, err := time.ParseDuration(s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}
