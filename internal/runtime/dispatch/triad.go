package dispatch

// Triad bundles the three dispatchers owned by one channel.
type Triad struct {
	Vent     *Vent
	Commands *Commands
	Reqres   *Reqres
}

// NewTriad builds the dispatchers of the named channel. observer may be nil.
func NewTriad(channel string, observer Observer) *Triad {
	return &Triad{
		Vent:     NewVent(channel, observer),
		Commands: NewCommands(channel, observer),
		Reqres:   NewReqres(channel, observer),
	}
}

// Reset removes every subscriber and handler from all three dispatchers.
func (t *Triad) Reset() {
	t.Vent.Reset()
	t.Commands.RemoveAllHandlers()
	t.Reqres.RemoveAllHandlers()
}
