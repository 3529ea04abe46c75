package connect

import (
	"time"

	"github.com/osa030/gapbox/internal/app/notification"
	"github.com/osa030/gapbox/internal/app/session"
	"github.com/osa030/gapbox/internal/domain/track"
)

// AddFilesRequest lists files or directories to register.
type AddFilesRequest struct {
	Paths []string `json:"paths" validate:"required,min=1,dive,required"`
}

// AddFilesResponse reports what was registered.
type AddFilesResponse struct {
	Added    []Track  `json:"added"`
	Errors   []string `json:"errors"`
	PoolSize int      `json:"pool_size"`
}

// ClearPoolResponse reports how many tracks were removed.
type ClearPoolResponse struct {
	Removed int `json:"removed"`
}

// RemoveTrackRequest names the track to remove.
type RemoveTrackRequest struct {
	Name string `json:"name" validate:"required"`
}

// ListTracksResponse lists the pool in insertion order.
type ListTracksResponse struct {
	Tracks               []Track `json:"tracks"`
	TotalDurationSeconds float64 `json:"total_duration_seconds"`
}

// SetGapRequest sets the gap bounds. The bounds may be given in either order.
type SetGapRequest struct {
	MinSeconds float64 `json:"min_seconds" validate:"gte=0,lte=3600"`
	MaxSeconds float64 `json:"max_seconds" validate:"gte=0,lte=3600"`
}

// MediaActionRequest carries a media-control action name.
type MediaActionRequest struct {
	Action string `json:"action" validate:"required"`
}

// Track describes a pool entry.
type Track struct {
	Name            string    `json:"name"`
	Label           string    `json:"label"`
	Title           string    `json:"title,omitempty"`
	Artist          string    `json:"artist,omitempty"`
	Album           string    `json:"album,omitempty"`
	Handle          string    `json:"handle"`
	DurationSeconds float64   `json:"duration_seconds"`
	AddedAt         time.Time `json:"added_at"`
}

// Status describes the playback state.
type Status struct {
	Phase               string                  `json:"phase"`
	Running             bool                    `json:"running"`
	Track               *notification.TrackInfo `json:"track,omitempty"`
	PlannedSeconds      float64                 `json:"planned_seconds"`
	ElapsedSeconds      float64                 `json:"elapsed_seconds"`
	RemainingSeconds    float64                 `json:"remaining_seconds"`
	GapMinSeconds       float64                 `json:"gap_min_seconds"`
	GapMaxSeconds       float64                 `json:"gap_max_seconds"`
	PoolSize            int                     `json:"pool_size"`
	PoolDurationSeconds float64                 `json:"pool_duration_seconds"`
	Subscribers         int                     `json:"subscribers"`
}

func toTrack(t track.Track) Track {
	return Track{
		Name:            t.Name,
		Label:           t.Label(),
		Title:           t.Title,
		Artist:          t.Artist,
		Album:           t.Album,
		Handle:          t.Handle,
		DurationSeconds: t.Duration.Seconds(),
		AddedAt:         t.AddedAt,
	}
}

func toTracks(tracks []track.Track) []Track {
	out := make([]Track, len(tracks))
	for i, t := range tracks {
		out[i] = toTrack(t)
	}
	return out
}

func toStatus(st *session.Status) *Status {
	lo, hi := st.Gap.Bounds()
	s := &Status{
		Phase:               st.Phase.String(),
		Running:             st.Running,
		PlannedSeconds:      st.Planned.Seconds(),
		ElapsedSeconds:      st.Elapsed.Seconds(),
		RemainingSeconds:    st.Remaining.Seconds(),
		GapMinSeconds:       lo,
		GapMaxSeconds:       hi,
		PoolSize:            st.PoolSize,
		PoolDurationSeconds: st.PoolDuration.Seconds(),
		Subscribers:         st.Subscribers,
	}
	if st.Track != nil {
		s.Track = &notification.TrackInfo{
			Name:            st.Track.Name,
			Label:           st.Track.Label(),
			Title:           st.Track.Title,
			Artist:          st.Track.Artist,
			Album:           st.Track.Album,
			Handle:          st.Track.Handle,
			DurationSeconds: st.Track.Duration.Seconds(),
		}
	}
	return s
}
