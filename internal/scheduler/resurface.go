package scheduler

import (
	"fmt"
	"strings"
)

// ResurfacePolicy decides what fills free display slots when the queue is
// empty.
type ResurfacePolicy string

const (
	// ResurfaceOff leaves free slots empty.
	ResurfaceOff ResurfacePolicy = "off"
	// ResurfaceRandom re-displays randomly chosen expired messages.
	ResurfaceRandom ResurfacePolicy = "random"
	// ResurfacePlaceholder behaves like ResurfaceRandom and also seeds the
	// placeholder messages into an empty board.
	ResurfacePlaceholder ResurfacePolicy = "placeholder"
)

// ParseResurfacePolicy parses a policy name, case-insensitively.
func ParseResurfacePolicy(s string) (ResurfacePolicy, error) {
	switch p := ResurfacePolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case ResurfaceOff, ResurfaceRandom, ResurfacePlaceholder:
		return p, nil
	case "":
		return ResurfaceRandom, nil
	}
	return "", fmt.Errorf("unknown resurface policy %q (want off, random or placeholder)", s)
}

// DefaultPlaceholders are shown on a board nobody has posted to yet.
var DefaultPlaceholders = []string{
	"Welcome to the December Lions Awards Message Board!",
	"Send a message to celebrate the team’s wins this year 🎉",
	"Your shoutouts will appear here. Post one now!",
	"Let’s fill the board with appreciation and good vibes ✨",
	"Got a message for the team? Share it through the form at post-a-message.fly.dev!",
}

// placeholderID returns the fixed id of the i-th placeholder.
func placeholderID(i int) string {
	return fmt.Sprintf("placeholder-%d", i+1)
}
