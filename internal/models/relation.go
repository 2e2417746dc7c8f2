package models

// RelationKind names one of the toggleable membership relations.
type RelationKind string

const (
	RelationVideoLike    RelationKind = "video_like"
	RelationCommentLike  RelationKind = "comment_like"
	RelationTweetLike    RelationKind = "tweet_like"
	RelationSubscription RelationKind = "subscription"
)

// Valid reports whether k is a known relation kind.
func (k RelationKind) Valid() bool {
	switch k {
	case RelationVideoLike, RelationCommentLike, RelationTweetLike, RelationSubscription:
		return true
	}
	return false
}

// RelationKey identifies a single membership fact between an actor and a target.
type RelationKey struct {
	ActorID  string
	TargetID string
	Kind     RelationKind
}
