package protocol

// Wire shapes. Pointers mark presence so that validator's required tag can
// tell a missing field from a zero one.

type envelope struct {
	Type string `json:"type"`
}

type videoSyncFrame struct {
	Type        string   `json:"type"`
	SessionID   *int64   `json:"sessionId" validate:"required,gt=0"`
	Action      *string  `json:"action" validate:"required,oneof=play pause seek"`
	Timestamp   *float64 `json:"timestamp,omitempty" validate:"omitempty,gte=0"`
	CurrentTime *float64 `json:"currentTime,omitempty" validate:"omitempty,gte=0"`
}

type chatFrame struct {
	Type      string   `json:"type"`
	SessionID *int64   `json:"sessionId" validate:"required,gt=0"`
	UserID    *int64   `json:"userId" validate:"required,gt=0"`
	Username  *string  `json:"username" validate:"required,min=1,max=36"`
	Message   *string  `json:"message" validate:"required,chatbody"`
	Timestamp *float64 `json:"timestamp" validate:"required,gte=0"`
}

type participantFrame struct {
	UserID   *int64  `json:"userId" validate:"required,gt=0"`
	Username *string `json:"username" validate:"required,min=1,max=36"`
}

type sessionUpdateFrame struct {
	Type         string             `json:"type"`
	SessionID    *int64             `json:"sessionId" validate:"required,gt=0"`
	Participants []participantFrame `json:"participants" validate:"required,dive"`
}

type joinFrame struct {
	Type      string  `json:"type"`
	SessionID *int64  `json:"sessionId" validate:"required,gt=0"`
	UserID    *int64  `json:"userId" validate:"required,gt=0"`
	Username  *string `json:"username" validate:"required,min=1,max=36"`
}

type errorFrame struct {
	Type    string `json:"type"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func ptr[T any](v T) *T { return &v }
