package port

import (
	"github.com/Manishrsh/video-chat-connectify-app/internal/core/domain"
)

// Gateway delivers envelopes to connected sessions. Delivery is best effort:
// no retries, no queuing beyond the connection's own send buffer.
type Gateway interface {
	Deliver(to domain.SessionID, env domain.Envelope) bool
}
