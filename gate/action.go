package gate

// Action describes the kind of operation a user wants to perform.
type Action string

const (
	ActionView        Action = "view"
	ActionCreate      Action = "create"
	ActionUpdate      Action = "update"
	ActionDelete      Action = "delete"
	ActionList        Action = "list"
	ActionImpersonate Action = "impersonate"

	// ActionAny in a rule matches every action on the resource.
	ActionAny Action = "*"
)
