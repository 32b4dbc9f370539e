package model

import "time"

// DiscoveryProgress is the checkpoint of a friend-list crawl for one seed.
// Complete marks a finished crawl kept until the whole population is cached.
type DiscoveryProgress struct {
	Seed      Username   `json:"seed"`
	NextPage  int        `json:"nextPage"`
	Complete  bool       `json:"complete,omitempty"`
	Usernames []Username `json:"usernames"`
	Timestamp time.Time  `json:"timestamp"`
}
