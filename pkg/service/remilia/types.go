package remilia

import (
	"bytes"
	"context"
	"encoding/json"
	"math"
	"strconv"
	"strings"
)

// Service provides access to the Remilia social network API
type Service interface {
	// GetProfile fetches the public profile of username. A body without a user
	// object fails with ErrInvalidPayload.
	GetProfile(ctx context.Context, username string) (*Profile, error)

	// ListFriends fetches one page of the friend list of username. Pages start at 1.
	ListFriends(ctx context.Context, username string, page, limit int) ([]Friend, error)
}

// Number decodes a JSON number, a numeric string or null. Anything that is not
// numeric decodes to zero.
type Number float64

func (n *Number) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || bytes.Equal(data, []byte("null")) {
		*n = 0
		return nil
	}

	var raw string
	if data[0] == '"' {
		if err := json.Unmarshal(data, &raw); err != nil {
			*n = 0
			return nil
		}
	} else {
		raw = string(data)
	}

	v, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		*n = 0
		return nil
	}
	*n = Number(v)
	return nil
}

// Int64 truncates toward zero
func (n Number) Int64() int64 {
	return int64(n)
}

type Profile struct {
	User            *ProfileUser `json:"user"`
	IsAuthenticated bool         `json:"isAuthenticated"`
	IsOwnProfile    bool         `json:"isOwnProfile"`
}

type ProfileUser struct {
	Username     string        `json:"username"`
	DisplayName  string        `json:"displayName"`
	PfpURL       string        `json:"pfpUrl"`
	Beetles      Number        `json:"beetles"`
	Pokes        Number        `json:"pokes"`
	SocialCredit *SocialCredit `json:"socialCredit"`
	FriendCount  Number        `json:"friendCount"`
}

type SocialCredit struct {
	Score          Number `json:"score"`
	LastCalculated string `json:"lastCalculated"`
}

// Friend is one entry of a friend list page
type Friend struct {
	DisplayUsername string `json:"displayUsername"`
	DisplayName     string `json:"displayName"`
	PfpURL          string `json:"pfpUrl"`
}

type friendsResponse struct {
	Page    Number    `json:"page"`
	Limit   Number    `json:"limit"`
	Friends *[]Friend `json:"friends"`
}
