package scheduler

// TrackStatus is the lifecycle state of one tracked execution.
type TrackStatus string

const (
	Queued  TrackStatus = "QUEUED"
	Running TrackStatus = "RUNNING"
	Success TrackStatus = "SUCCESS"
	Failed  TrackStatus = "FAILED"
	Expired TrackStatus = "EXPIRED"
)

func (s TrackStatus) String() string {
	return string(s)
}

func (s TrackStatus) Valid() bool {
	switch s {
	case
		Queued,
		Running,
		Success,
		Failed,
		Expired:
		return true
	default:
		return false
	}
}

func (s TrackStatus) IsQueued() bool {
	return s == Queued
}

func (s TrackStatus) IsRunning() bool {
	return s == Running
}

func (s TrackStatus) IsSuccess() bool {
	return s == Success
}

func (s TrackStatus) IsFailed() bool {
	return s == Failed
}

func (s TrackStatus) IsExpired() bool {
	return s == Expired
}
