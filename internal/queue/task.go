package queue

// CompactionJob asks the worker to re-derive a conversation's rolling
// summary after a turn. AssistantMessageID pins the triggering turn so the
// worker can detect a context clear that happened after enqueue.
type CompactionJob struct {
	ConversationID     int64
	AssistantMessageID int64
	TraceID            string
	Attempt            int
}
