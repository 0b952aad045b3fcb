package service

// NotificationKind classifies a user-facing notification.
type NotificationKind string

const (
	NotifySuccess NotificationKind = "success"
	NotifyError   NotificationKind = "error"
)

// Notifier receives one notification per terminal outcome of a store operation.
// Rendering is the implementation's concern.
type Notifier interface {
	Notify(kind NotificationKind, message string)
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(kind NotificationKind, message string)

func (f NotifierFunc) Notify(kind NotificationKind, message string) { f(kind, message) }

// Navigator is told when the marker currently shown may no longer exist,
// so the UI can leave its detail page.
type Navigator interface {
	MarkerDeleted(id string)
}

type nopNotifier struct{}

func (nopNotifier) Notify(NotificationKind, string) {}

type nopNavigator struct{}

func (nopNavigator) MarkerDeleted(string) {}

// Notification texts.
const (
	MsgAdded         = "Marker added successfully"
	MsgEdited        = "Marker edited successfully"
	MsgDeleted       = "Marker deleted successfully"
	MsgLoaded        = "Marker loaded"
	MsgListLoaded    = "Markers loaded"
	MsgAddFailed     = "Error adding marker"
	MsgEditFailed    = "Error editing marker"
	MsgDeleteFailed  = "Error deleting marker"
	MsgFetchFailed   = "Error fetching marker"
	MsgListFetchFail = "Error fetching markers"
)
