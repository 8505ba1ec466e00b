package transfer

// PostCreation carries the composition form. Accounts is a JSON array of
// connected account ids; one Post row is created per account.
type PostCreation struct {
	Caption      string
	Title        string
	ScheduledFor string
	Accounts     string
}

// PostUpdate carries the editable fields. Nil pointers leave a field
// unchanged; an empty ScheduledFor clears the schedule (back to draft).
type PostUpdate struct {
	Caption      *string `json:"caption"`
	Title        *string `json:"title"`
	ScheduledFor *string `json:"scheduled_for"`
}
