package domain

// Namespace partitions the presence registry so the same user id can hold
// independent connections per activity type.
type Namespace string

const (
	NamespaceMessaging Namespace = "messaging"
	NamespaceGroup     Namespace = "group-messaging"
	NamespaceCalling   Namespace = "calling"
)
