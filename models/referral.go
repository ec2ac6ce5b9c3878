package models

import "time"

// ReferralKind distinguishes the two referral edge sources. Edges are not stored as rows:
// an edge exists wherever Profile.ReferredBy or Supporter.ReferredBy equals a profile id,
// and it is written only when the referred entity is created.
type ReferralKind string

const (
	ReferralKindMember    ReferralKind = "member"
	ReferralKindSupporter ReferralKind = "supporter"
)

// ReferralCounts aggregates the edges pointing at one profile
type ReferralCounts struct {
	Members    int64 `json:"members"`
	Supporters int64 `json:"supporters"`
}

// ReferralEdge is a read-side projection of one referral
type ReferralEdge struct {
	Kind       ReferralKind `json:"kind"`
	ReferredID string       `json:"referred_id"`
	Name       string       `json:"name"`
	CreatedAt  time.Time    `json:"created_at"`
}
