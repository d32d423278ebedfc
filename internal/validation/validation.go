// Package validation parses and checks request parameters.
package validation

import (
	"errors"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/models"
)

// MaxEngagementIDs bounds one engagement lookup.
const MaxEngagementIDs = 100

var (
	ErrInvalidLimit = errors.New("limit must be an integer")
	ErrInvalidID    = errors.New("invalid id")
	ErrInvalidKind  = errors.New("kind must be asset or comment")
	ErrTooManyIDs   = errors.New("too many ids")
	ErrMissingIDs   = errors.New("ids is required")
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// ParseLimit reads the limit query value. Empty means "use the default",
// reported as 0; clamping happens in the planner.
func ParseLimit(raw string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, ErrInvalidLimit
	}
	return n, nil
}

// ParseUUID accepts only canonical, non-nil uuids.
func ParseUUID(raw string) (uuid.UUID, error) {
	raw = strings.ToLower(strings.TrimSpace(raw))
	if err := validate.Var(raw, "required,uuid"); err != nil {
		return uuid.Nil, ErrInvalidID
	}
	id, err := uuid.Parse(raw)
	if err != nil || id == uuid.Nil {
		return uuid.Nil, ErrInvalidID
	}
	return id, nil
}

func ParseKind(raw string) (models.EntityKind, error) {
	kind, err := models.ParseEntityKind(strings.ToLower(strings.TrimSpace(raw)))
	if err != nil {
		return "", ErrInvalidKind
	}
	return kind, nil
}

// EngagementQuery is the query string of GET /api/engagement.
type EngagementQuery struct {
	Kind string   `validate:"required,oneof=asset comment"`
	IDs  []string `validate:"required,min=1,dive,uuid"`
}

// ParseEngagementQuery validates kind and a comma separated id list.
// Duplicate ids are dropped, first occurrence wins.
func ParseEngagementQuery(kind, ids string) (models.EntityKind, []uuid.UUID, error) {
	q := EngagementQuery{Kind: strings.ToLower(strings.TrimSpace(kind)), IDs: splitIDs(ids)}
	if len(q.IDs) > MaxEngagementIDs {
		return "", nil, ErrTooManyIDs
	}
	if err := validate.Struct(q); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			switch verrs[0].StructField() {
			case "Kind":
				return "", nil, ErrInvalidKind
			case "IDs":
				if len(q.IDs) == 0 {
					return "", nil, ErrMissingIDs
				}
			}
		}
		return "", nil, ErrInvalidID
	}

	seen := make(map[uuid.UUID]bool, len(q.IDs))
	out := make([]uuid.UUID, 0, len(q.IDs))
	for _, raw := range q.IDs {
		id, err := ParseUUID(raw)
		if err != nil {
			return "", nil, err
		}
		if seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return models.EntityKind(q.Kind), out, nil
}

func splitIDs(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.ToLower(strings.TrimSpace(p)); p != "" {
			out = append(out, p)
		}
	}
	return out
}
