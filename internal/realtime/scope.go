package realtime

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/theposch/mainstream-sub002/internal/models"
)

// Scope groups the like events one subscription receives: every asset like,
// or every comment like under one asset.
type Scope struct {
	Kind     models.EntityKind
	ParentID uuid.UUID
}

const (
	assetScopeKey    = "assets"
	commentScopePref = "comments:"
)

func AssetScope() Scope {
	return Scope{Kind: models.KindAsset}
}

func CommentScope(assetID uuid.UUID) Scope {
	return Scope{Kind: models.KindComment, ParentID: assetID}
}

// Key is the stable string form used on the wire and as the broker channel
// suffix.
func (s Scope) Key() string {
	if s.Kind == models.KindComment {
		return commentScopePref + s.ParentID.String()
	}
	return assetScopeKey
}

func (s Scope) String() string { return s.Key() }

func ParseScope(key string) (Scope, error) {
	key = strings.TrimSpace(key)
	if key == assetScopeKey {
		return AssetScope(), nil
	}
	if rest, ok := strings.CutPrefix(key, commentScopePref); ok {
		id, err := uuid.Parse(rest)
		if err != nil || id == uuid.Nil {
			return Scope{}, fmt.Errorf("invalid scope %q", key)
		}
		return CommentScope(id), nil
	}
	return Scope{}, fmt.Errorf("invalid scope %q", key)
}
