package domain

import "time"

// ArtifactKind enumerates the content-addressed artifact kinds.
type ArtifactKind string

// Artifact kinds.
const (
	ArtifactManifest    ArtifactKind = "manifest"
	ArtifactSnapshot    ArtifactKind = "snapshot"
	ArtifactStrategy    ArtifactKind = "strategy"
	ArtifactExecModel   ArtifactKind = "exec_model"
	ArtifactCostModel   ArtifactKind = "cost_model"
	ArtifactRiskModel   ArtifactKind = "risk_model"
	ArtifactTrades      ArtifactKind = "trades"
	ArtifactMetrics     ArtifactKind = "metrics"
	ArtifactEvents      ArtifactKind = "events"
	ArtifactDiagnostics ArtifactKind = "diagnostics"
)

// ArtifactStatus tracks an artifact's lifecycle.
type ArtifactStatus string

// Artifact statuses.
const (
	ArtifactActive     ArtifactStatus = "active"
	ArtifactSuperseded ArtifactStatus = "superseded"
	ArtifactDeleted    ArtifactStatus = "deleted"
)

// ArtifactDescriptor is the metadata record of a stored artifact.
// Identical content yields an identical ContentHash and deduplicates.
type ArtifactDescriptor struct {
	ArtifactID  string         `json:"artifact_id"`
	Kind        ArtifactKind   `json:"kind"`
	ContentHash string         `json:"content_hash"`
	CreatedAt   time.Time      `json:"created_at"`
	Status      ArtifactStatus `json:"status"`
	Lineage     []string       `json:"lineage,omitempty"`
}
