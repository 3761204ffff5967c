package types

// ComicStatus tracks a comic through its generation lifecycle. A job moves
// strictly forward through the generating_* states; failed is reachable from
// any non-terminal state.
type ComicStatus string

const (
	StatusPending          ComicStatus = "pending"
	StatusGeneratingStory  ComicStatus = "generating_story"
	StatusGeneratingPanels ComicStatus = "generating_panels"
	StatusGeneratingImages ComicStatus = "generating_images"
	StatusGeneratingAudio  ComicStatus = "generating_audio"
	StatusCompleted        ComicStatus = "completed"
	StatusFailed           ComicStatus = "failed"
)

func (s ComicStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusFailed
}
