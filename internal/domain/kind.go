package domain

import (
	"fmt"
	"time"
)

// Kind identifies the provider family a content item came from.
type Kind string

const (
	KindNews    Kind = "news"
	KindVideo   Kind = "video"
	KindAudio   Kind = "audio"
	KindRelease Kind = "release"
)

// Kinds lists every kind in the order refresh results are processed.
var Kinds = []Kind{KindVideo, KindAudio, KindRelease, KindNews}

func (k Kind) Valid() bool {
	switch k {
	case KindNews, KindVideo, KindAudio, KindRelease:
		return true
	}
	return false
}

func ParseKind(s string) (Kind, error) {
	k := Kind(s)
	if !k.Valid() {
		return "", fmt.Errorf("unknown kind %q", s)
	}
	return k, nil
}

// Window is a recency window used by the listing query.
type Window string

const (
	Window24h Window = "24h"
	Window7d  Window = "7d"
	Window30d Window = "30d"

	DefaultWindow = Window7d
)

func ParseWindow(s string) (Window, error) {
	switch Window(s) {
	case Window24h, Window7d, Window30d:
		return Window(s), nil
	case "":
		return DefaultWindow, nil
	}
	return "", fmt.Errorf("unknown window %q", s)
}

// Duration returns the look-back span of the window.
func (w Window) Duration() time.Duration {
	switch w {
	case Window24h:
		return 24 * time.Hour
	case Window30d:
		return 30 * 24 * time.Hour
	default:
		return 7 * 24 * time.Hour
	}
}
