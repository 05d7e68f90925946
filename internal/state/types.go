package state

import (
	"time"

	"github.com/danielpatrickdp/response-guard/internal/chemistry"
)

// #region chemistry-record

// ChemistryRecord is one versioned snapshot of the chemistry levels,
// linked to its parent so the full lineage can be replayed.
type ChemistryRecord struct {
	VersionID string
	ParentID  string
	Levels    chemistry.Levels
	Delta     chemistry.Delta
	CreatedAt time.Time
}

// #endregion chemistry-record
