package worker

// HandlerRegistrar subscribes event handlers on a dispatcher.
type HandlerRegistrar interface {
	RegisterHandlers()
}

// StartEventWorkers registers every subscriber. Nil entries are skipped.
func StartEventWorkers(registrars ...HandlerRegistrar) {
	for _, r := range registrars {
		if r == nil {
			continue
		}
		r.RegisterHandlers()
	}
}
