package chat

type BackpressureAction int

const (
	NoAction BackpressureAction = iota
	MarkSlow
	KickMember
	DropFrame
)

type Policy interface {
	OnBackPressure(hub *Hub, member *Client) BackpressureAction
}

type SimplePolicy struct{}

func (SimplePolicy) OnBackPressure(hub *Hub, member *Client) BackpressureAction {
	return KickMember
}
