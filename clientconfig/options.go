// Package clientconfig defines and validates the options a caller
// supplies when building a topology-aware client.
package clientconfig

import (
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"github.com/scylladb/alternator-go-client/internal/clienterrors"
	"github.com/scylladb/alternator-go-client/routing"
)

var validate = validator.New()

const (
	defaultUpdatePeriod  = 10 * time.Second
	defaultPollerTimeout = 5 * time.Second
)

// Options configures a client build. SeedNode is the only field
// without a usable zero value.
type Options struct {
	// SeedNode is the starting scheme://host:port endpoint.
	SeedNode string `validate:"required,url"`

	// UpdatePeriod is the poller period; defaults to 10s.
	UpdatePeriod time.Duration `validate:"gte=0"`

	// PollerTimeout bounds each /localnodes call; defaults to 5s.
	PollerTimeout time.Duration `validate:"gte=0"`

	// Datacenter and Rack restrict the initial routing scope to a
	// datacenter or rack; Cluster if both are empty.
	Datacenter string
	Rack       string

	// KeyAffinityMode selects partition-key routing: "none",
	// "read-modify-write", or "any-write".
	KeyAffinityMode string `validate:"omitempty,oneof=none read-modify-write any-write"`

	// PKInfoPerTable pre-seeds the partition-key cache, skipping
	// discovery for the named tables.
	PKInfoPerTable map[string]string

	// CloudWatchNamespace, if non-empty, enables a CloudWatch publisher
	// alongside (or instead of) the Prometheus registry, pushing the
	// same active/quarantined node counts under this namespace.
	CloudWatchNamespace string

	// CloudWatchPublishInterval controls how often the CloudWatch
	// publisher calls PutMetricData; defaults to one minute.
	CloudWatchPublishInterval time.Duration `validate:"gte=0"`
}

// WithDefaults returns a copy of o with a zero-valued UpdatePeriod,
// PollerTimeout, and affinity mode replaced by their defaults.
// CloudWatchPublishInterval is left as is; the publisher applies its
// own default.
func (o Options) WithDefaults() Options {
	if o.UpdatePeriod <= 0 {
		o.UpdatePeriod = defaultUpdatePeriod
	}
	if o.PollerTimeout <= 0 {
		o.PollerTimeout = defaultPollerTimeout
	}
	if o.KeyAffinityMode == "" {
		o.KeyAffinityMode = "none"
	}
	return o
}

// Validate checks o against its struct tags and the cross-field rules
// the tags can't express (rack requires a datacenter).
func (o Options) Validate() error {
	if err := validate.Struct(o); err != nil {
		return formatValidationError(err)
	}
	if o.Rack != "" && o.Datacenter == "" {
		return clienterrors.InvalidArgument(fmt.Sprintf("clientconfig: rack %q specified without a datacenter", o.Rack))
	}
	return nil
}

// AffinityMode parses KeyAffinityMode into the routing package's enum.
// Validate must have succeeded first.
func (o Options) AffinityMode() routing.AffinityMode {
	switch o.WithDefaults().KeyAffinityMode {
	case "read-modify-write":
		return routing.ModeReadModifyWrite
	case "any-write":
		return routing.ModeAnyWrite
	default:
		return routing.ModeNone
	}
}

func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return err
	}
	var msgs []string
	for _, e := range validationErrors {
		msgs = append(msgs, formatFieldError(e))
	}
	return clienterrors.InvalidArgument(fmt.Sprintf("clientconfig: %s", strings.Join(msgs, "; ")))
}

func formatFieldError(e validator.FieldError) string {
	field := strings.ToLower(e.Field())
	switch e.Tag() {
	case "required":
		return fmt.Sprintf("%s is required", field)
	case "url":
		return fmt.Sprintf("%s must be a valid URL", field)
	case "oneof":
		return fmt.Sprintf("%s must be one of: %s", field, e.Param())
	case "gte":
		return fmt.Sprintf("%s must be >= %s", field, e.Param())
	default:
		return fmt.Sprintf("%s is invalid", field)
	}
}
