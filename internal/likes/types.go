package likes

// LikeResult is the like state of one capture as seen by one user, with the
// live total across all users.
type LikeResult struct {
	CaptureID  int64 `json:"capture_id"`
	Liked      bool  `json:"liked"`
	TotalLikes int64 `json:"total_likes"`
}

// LikedIDsDTO lists the captures a user has liked.
type LikedIDsDTO struct {
	CaptureIDs []int64 `json:"capture_ids"`
}
