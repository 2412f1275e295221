package chat

import "context"

// enqueue hands a message to the asynchronous persistence worker so the
// interactive echo and fan-out path never waits on storage. A full
// queue drops the message; the parties already saw it live, durability
// for it is lost.
func (s *Server) enqueue(msg Message) {
	select {
	case s.persistCh <- msg:
	default:
		s.Logger.Error("Persistence queue full, message dropped",
			"sender_id", msg.SenderID, "recipient_id", msg.RecipientID)
	}
}

// persistLoop drains the queue, writing each message and its
// unread-notification row in one transaction. Failures are logged and
// not retried.
func (s *Server) persistLoop(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case msg := <-s.persistCh:
			if _, err := s.DB.SaveMessage(ctx, msg); err != nil {
				s.Logger.Error("Could not persist message",
					"sender_id", msg.SenderID, "recipient_id", msg.RecipientID, "error", err.Error())
			}
		}
	}
}
