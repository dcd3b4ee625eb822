package signal

func (ctl *Controller) handlePing(conn *Conn) {
	ctl.sendJSON(conn, struct {
		Type string `json:"type"`
	}{Type: "pong"})
}
