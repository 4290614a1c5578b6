package secretstore

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"cloud.google.com/go/secretmanager/apiv1/secretmanagerpb"
)

// LatestVersion is the alias the backend resolves to the newest ENABLED
// version. It is never stored as a version id.
const LatestVersion = "latest"

// Identity addresses one logical secret: projects/{project}/secrets/{secret}.
// The zero value is not valid; use NewIdentity.
type Identity struct {
	projectID string
	secretID  string
}

// NewIdentity validates and builds an Identity.
func NewIdentity(projectID, secretID string) (Identity, error) {
	if err := validateSegment("project_id", projectID); err != nil {
		return Identity{}, err
	}
	if err := validateSegment("secret_id", secretID); err != nil {
		return Identity{}, err
	}
	return Identity{projectID: projectID, secretID: secretID}, nil
}

// MustIdentity is NewIdentity for literals known to be valid.
func MustIdentity(projectID, secretID string) Identity {
	id, err := NewIdentity(projectID, secretID)
	if err != nil {
		panic(err)
	}
	return id
}

func validateSegment(field, value string) error {
	if value == "" {
		return InvalidArgumentError{Field: field, Message: "must not be empty"}
	}
	if strings.Contains(value, "/") {
		return InvalidArgumentError{Field: field, Value: value, Message: "must not contain '/'"}
	}
	return nil
}

func (i Identity) ProjectID() string { return i.projectID }
func (i Identity) SecretID() string  { return i.secretID }

// Parent returns the secret resource name.
func (i Identity) Parent() string {
	return fmt.Sprintf("projects/%s/secrets/%s", i.projectID, i.secretID)
}

// VersionName returns the resource name of one version of the secret.
func (i Identity) VersionName(versionID string) string {
	return fmt.Sprintf("%s/versions/%s", i.Parent(), versionID)
}

func (i Identity) String() string { return i.Parent() }

// State is the lifecycle state of a secret version as reported by the backend.
type State int

const (
	StateUnknown State = iota
	StateEnabled
	StateDisabled
	StateDestroyed
)

func (s State) String() string {
	switch s {
	case StateEnabled:
		return "ENABLED"
	case StateDisabled:
		return "DISABLED"
	case StateDestroyed:
		return "DESTROYED"
	default:
		return "UNKNOWN"
	}
}

func stateFromProto(s secretmanagerpb.SecretVersion_State) State {
	switch s {
	case secretmanagerpb.SecretVersion_ENABLED:
		return StateEnabled
	case secretmanagerpb.SecretVersion_DISABLED:
		return StateDisabled
	case secretmanagerpb.SecretVersion_DESTROYED:
		return StateDestroyed
	default:
		return StateUnknown
	}
}

// Version is one immutable payload revision of a secret. Payload is only
// populated by FetchVersion.
type Version struct {
	ID          string
	State       State
	Payload     []byte
	CreateTime  time.Time
	DestroyTime time.Time
}

// Ordinal parses the version id as its integer ordinal.
func (v Version) Ordinal() (int64, error) {
	return ParseOrdinal(v.ID)
}

// ParseOrdinal parses a version id as a positive integer. The backend does
// not promise numeric ids, so a non-numeric id is reported as an
// InvalidArgumentError instead of being skipped.
func ParseOrdinal(versionID string) (int64, error) {
	n, err := strconv.ParseInt(versionID, 10, 64)
	if err != nil || n <= 0 || strconv.FormatInt(n, 10) != versionID {
		return 0, InvalidArgumentError{
			Field:   "version_id",
			Value:   versionID,
			Message: "expected a positive integer ordinal",
			Err:     err,
		}
	}
	return n, nil
}

// VersionIDFromName extracts the trailing version id from a resource name of
// the form projects/*/secrets/*/versions/{id}.
func VersionIDFromName(name string) (string, error) {
	parts := strings.Split(name, "/")
	if len(parts) != 6 || parts[0] != "projects" || parts[2] != "secrets" || parts[4] != "versions" || parts[5] == "" {
		return "", InvalidArgumentError{
			Field:   "name",
			Value:   name,
			Message: "expected projects/{project}/secrets/{secret}/versions/{version}",
		}
	}
	return parts[5], nil
}

func versionFromProto(pb *secretmanagerpb.SecretVersion) (Version, error) {
	id, err := VersionIDFromName(pb.GetName())
	if err != nil {
		return Version{}, err
	}
	v := Version{
		ID:    id,
		State: stateFromProto(pb.GetState()),
	}
	if pb.GetCreateTime() != nil {
		v.CreateTime = pb.GetCreateTime().AsTime()
	}
	if pb.GetDestroyTime() != nil {
		v.DestroyTime = pb.GetDestroyTime().AsTime()
	}
	return v, nil
}
