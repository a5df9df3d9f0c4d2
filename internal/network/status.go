package network

// Status is a point-in-time snapshot of a coordinator, safe to hand to other
// goroutines.
type Status struct {
	Session    string          `json:"session"`
	SyncID     uint64          `json:"sync_id"`
	MinHorizon int             `json:"min_horizon"`
	Horizon    int             `json:"horizon"`
	Active     bool            `json:"active"`
	Waiting    []Endpoint      `json:"waiting"`
	Peers      []PeerStatus    `json:"peers"`
	Services   []ServiceStatus `json:"services"`
}

// PeerStatus describes one peer.
type PeerStatus struct {
	Host    string `json:"host"`
	Port    int    `json:"port"`
	State   string `json:"state"`
	Horizon int    `json:"horizon"`
	Filling bool   `json:"filling"`
}

// ServiceStatus describes one service.
type ServiceStatus struct {
	Name    string `json:"name"`
	Port    int    `json:"port"`
	Clients int    `json:"clients"`
}

// Status returns a snapshot of the coordinator.
func (c *Coordinator) Status() Status {
	s := Status{
		Session:    c.session,
		SyncID:     c.clock.Current(),
		MinHorizon: c.minHorizon,
		Horizon:    c.Horizon(),
		Active:     c.active,
		Waiting:    c.Waiting(),
		Peers:      make([]PeerStatus, 0, len(c.peers)),
		Services:   make([]ServiceStatus, 0, len(c.serviceOrder)),
	}

	for _, p := range c.peers {
		_, filling := c.filling[p.endpoint]
		s.Peers = append(s.Peers, PeerStatus{
			Host:    p.endpoint.Host,
			Port:    p.endpoint.Port,
			State:   p.conn.State().String(),
			Horizon: p.buffer.Horizon(),
			Filling: filling,
		})
	}

	for _, name := range c.serviceOrder {
		svc := c.services[name]
		s.Services = append(s.Services, ServiceStatus{
			Name:    name,
			Port:    svc.Port(),
			Clients: svc.ClientCount(),
		})
	}

	return s
}
