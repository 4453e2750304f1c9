package audithook

// Audit event actions. Each constant corresponds to one ext lifecycle hook
// and becomes the Action field of the audit event.
const (
	ActionTokenAdmitted     = "token.admitted"
	ActionTokenCalled       = "token.called"
	ActionServiceStarted    = "token.service_started"
	ActionServiceCompleted  = "token.completed"
	ActionTokenCancelled    = "token.cancelled"
	ActionTokenExpired      = "token.expired"
	ActionQueueChanged      = "queue.changed"
	ActionModelTrained      = "model.trained"
	ActionModelTrainSkipped = "model.train_skipped"
)

// Audit event categories group related actions.
const (
	CategoryToken     = "smartqueue.token"
	CategoryQueue     = "smartqueue.queue"
	CategoryEstimator = "smartqueue.estimator"
)

// Resource types used as the Resource field in audit events.
const (
	ResourceToken = "token"
	ResourceQueue = "queue"
	ResourceModel = "wait_model"
)

// AllActions returns every action this extension can emit.
func AllActions() []string {
	return []string{
		ActionTokenAdmitted,
		ActionTokenCalled,
		ActionServiceStarted,
		ActionServiceCompleted,
		ActionTokenCancelled,
		ActionTokenExpired,
		ActionQueueChanged,
		ActionModelTrained,
		ActionModelTrainSkipped,
	}
}
