package id

import (
	"fmt"
	"regexp"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/oklog/ulid/v2"
)

var (
	uuidPattern = regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{4}-[0-9a-f]{12}$`)
	ulidPattern = regexp.MustCompile(`^[0-9A-HJKMNP-TV-Z]{26}$`)
)

// DefaultSeparator joins the parts of a singleton composite key
const DefaultSeparator = ":"

// NewRecordID returns a fresh record identity
func NewRecordID() string {
	return uuid.NewString()
}

// NewMergeID returns a time-sortable merge identifier
func NewMergeID() string {
	return ulid.Make().String()
}

// MergeTime extracts the timestamp encoded in a merge id
func MergeTime(mergeID string) (time.Time, error) {
	u, err := ulid.ParseStrict(mergeID)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid merge id %q: %w", mergeID, err)
	}
	return ulid.Time(u.Time()), nil
}

// IsUUID checks if a string is a valid UUID
func IsUUID(s string) bool {
	return uuidPattern.MatchString(strings.ToLower(s))
}

// IsMergeID checks if a string is a valid merge id
func IsMergeID(s string) bool {
	return ulidPattern.MatchString(s)
}

// SingletonKey builds the composite key of a one-row-per-owner collection
func SingletonKey(kind, ownerID, sep string) string {
	if sep == "" {
		sep = DefaultSeparator
	}
	return kind + sep + ownerID
}

// ParseSingletonKey splits a composite key into kind and owner id. The owner
// id is everything after the first separator.
func ParseSingletonKey(key, sep string) (kind, ownerID string, err error) {
	if sep == "" {
		sep = DefaultSeparator
	}
	kind, ownerID, ok := strings.Cut(key, sep)
	if !ok || kind == "" || ownerID == "" {
		return "", "", fmt.Errorf("invalid composite key %q: expected <type>%s<owner>", key, sep)
	}
	return kind, ownerID, nil
}
