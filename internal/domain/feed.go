package domain

// FeedCapacity bounds the latest-merges activity feed.
const FeedCapacity = 100

// MergeFeedTarget is the surviving side of a feed entry, carrying the
// survivor's post-merge mass.
type MergeFeedTarget struct {
	ID   int   `json:"id"`
	Mass int64 `json:"mass"`
	Tier int   `json:"tier"`
}

// MergeFeedEntry is one row of the most-recent-first activity feed. Mass
// and Tier describe the burned token as of just before the merge;
// MergedOn is an ISO-8601 timestamp, or nil when the block timestamp was
// unavailable.
type MergeFeedEntry struct {
	ID       int             `json:"id"`
	Mass     int64           `json:"mass"`
	Tier     int             `json:"tier"`
	MergedOn *string         `json:"merged_on"`
	MergedTo MergeFeedTarget `json:"merged_to"`
}

// PrependFeed puts entries (most recent first) ahead of feed and
// truncates to FeedCapacity.
func PrependFeed(feed []MergeFeedEntry, entries []MergeFeedEntry) []MergeFeedEntry {
	out := make([]MergeFeedEntry, 0, len(entries)+len(feed))
	out = append(out, entries...)
	out = append(out, feed...)
	if len(out) > FeedCapacity {
		out = out[:FeedCapacity]
	}
	return out
}
