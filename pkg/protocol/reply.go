package protocol

// BuildReply constructs the reply packet for req given the dispatched
// result, per spec §4.2: dest=req.Src, src=ownAddr, ctrl carries B
// preserved from the request, A set from the result status, command
// preserved, POLL cleared.
func BuildReply(req Packet, ownAddr byte, result CommandResult) Packet {
	ctrl := MakeControl(false, req.Ctrl.B(), result.Status == ACK, req.Ctrl.Command())
	return Packet{
		Dest: req.Src,
		Src:  ownAddr,
		Ctrl: ctrl,
		Data: result.Data,
	}
}

// ShouldReply reports whether a reply should be built and transmitted for
// req, per spec §4.2/§9: only polled, non-broadcast requests get a reply;
// at most one reply per request.
func ShouldReply(req Packet) bool {
	return req.Ctrl.Poll() && req.Dest != Broadcast
}
