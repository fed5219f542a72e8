package listener

import "github.com/google/uuid"

// session implements protocol.Session with a random identifier, used only
// for log and event correlation.
type session struct{ id string }

func newSession() *session { return &session{id: uuid.NewString()} }

func (s *session) ID() string { return s.id }
